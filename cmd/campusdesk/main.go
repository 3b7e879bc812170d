package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vango-dev/campusdesk/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if os.Getenv("NO_COLOR") != "" {
		errors.DisableColors()
	}
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprint(os.Stderr, errors.FormatError(err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campusdesk",
		Short: "School administration state server",
		Long: `campusdesk holds the application state of the school administration
desk (auth, students, financial records, classes) in a single store,
persists it across restarts and pushes state and toast notifications
to connected browsers over WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("dir", "d", ".", "Directory containing campusdesk.json")

	cmd.AddCommand(
		serveCmd(),
		inspectCmd(),
		configCmd(),
		versionCmd(),
	)
	return cmd
}

// configDir returns the --dir flag.
func configDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = "."
	}
	return dir
}
