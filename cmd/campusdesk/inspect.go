package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/campusdesk/internal/config"
	"github.com/vango-dev/campusdesk/pkg/persist"
)

// snapshotView is the inspect output.
type snapshotView struct {
	Key     string                     `json:"key"`
	Version int                        `json:"version"`
	SavedAt time.Time                  `json:"savedAt"`
	Slices  map[string]json.RawMessage `json:"slices"`
}

func inspectCmd() *cobra.Command {
	var slice string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the persisted state snapshot",
		Long: `Print the state snapshot stored by the configured persistence
backend, without starting a server.

Examples:
  campusdesk inspect
  campusdesk inspect --slice=students`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir(cmd))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			storage, err := cfg.OpenStorage(ctx)
			if err != nil {
				return err
			}
			defer storage.Close()

			version, savedAt, stored, err := persist.ReadSnapshot(ctx, storage, cfg.Persist.Key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if stored == nil {
				fmt.Fprintf(out, "no snapshot stored under %q\n", cfg.Persist.Key)
				return nil
			}

			var v any = snapshotView{Key: cfg.Persist.Key, Version: version, SavedAt: savedAt, Slices: stored}
			if slice != "" {
				raw, ok := stored[slice]
				if !ok {
					return fmt.Errorf("slice %q is not in the snapshot", slice)
				}
				v = raw
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&slice, "slice", "", "Print only this slice")

	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after campusdesk.json and CAMPUSDESK_*
environment variables are applied. Credentials are never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir(cmd))
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return cfg.Validate()
		},
	}
}
