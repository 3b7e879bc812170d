package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/campusdesk/internal/config"
	"github.com/vango-dev/campusdesk/pkg/slices"
)

func fileConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Server.Host = "127.0.0.1"
	cfg.Persist.Backend = config.BackendFile
	cfg.Persist.Dir = filepath.Join(dir, "state")
	cfg.Persist.Throttle = "0s"
	cfg.Metrics.Enabled = false
	if err := cfg.SaveTo(filepath.Join(dir, config.ConfigFileName)); err != nil {
		t.Fatal(err)
	}
	// Bind an ephemeral port; not persisted so Load keeps the default.
	cfg.Server.Port = 0
	return cfg, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestServeAndInspect(t *testing.T) {
	cfg, dir := fileConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, io.Discard)
	if err != nil {
		t.Fatalf("newApp() = %v", err)
	}
	if err := a.server.Listen(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + a.server.Addr().String()
	resp, err := client.Post(base+"/api/dispatch", "application/json",
		strings.NewReader(`{"type":"students/added","payload":{"id":"s1","name":"Ada"}}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status = %d", resp.StatusCode)
	}
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return")
	}
	if a.notifier.Active() {
		t.Error("notifier still active after run")
	}

	out, err := execute(t, "inspect", "--dir", dir, "--slice", slices.KeyStudents)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var students slices.StudentsState
	if err := json.Unmarshal([]byte(out), &students); err != nil {
		t.Fatalf("inspect output %q: %v", out, err)
	}
	if s, ok := students.Find("s1"); !ok || s.Name != "Ada" {
		t.Errorf("inspected students = %+v", students)
	}

	out, err = execute(t, "inspect", "--dir", dir)
	if err != nil {
		t.Fatal(err)
	}
	var view snapshotView
	json.Unmarshal([]byte(out), &view)
	if view.Key != "root" || len(view.Slices) != 4 {
		t.Errorf("snapshot view = %s", out)
	}

	if _, err := execute(t, "inspect", "--dir", dir, "--slice", "nope"); err == nil {
		t.Error("unknown slice did not fail")
	}
}

func TestRestartRestoresState(t *testing.T) {
	cfg, _ := fileConfig(t)
	ctx := context.Background()

	first, err := newApp(ctx, cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	first.store.Dispatch(slices.ClassAdded(slices.Class{ID: "c1", Name: "Algebra", Capacity: 2}))
	if err := first.server.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	first.notifier.Close()
	first.storage.Close()

	second, err := newApp(ctx, cfg, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		second.server.Shutdown(ctx)
		second.notifier.Close()
		second.storage.Close()
	}()

	classes, _ := second.store.GetState()[slices.KeyClasses].(slices.ClassesState)
	if len(classes.Items) != 1 || classes.Items[0].Name != "Algebra" {
		t.Errorf("restored classes = %+v", classes)
	}
}

func TestInspectWithoutSnapshot(t *testing.T) {
	_, dir := fileConfig(t)
	out, err := execute(t, "inspect", "--dir", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "no snapshot") {
		t.Errorf("out = %q", out)
	}
}

func TestConfigCommandHidesSecrets(t *testing.T) {
	_, dir := fileConfig(t)
	t.Setenv("CAMPUSDESK_PERSIST_SECRET_ACCESS_KEY", "hunter2")
	t.Setenv("CAMPUSDESK_LOG_LEVEL", "debug")

	out, err := execute(t, "config", "--dir", dir)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "hunter2") {
		t.Error("secret printed")
	}
	if !strings.Contains(out, `"level": "debug"`) {
		t.Errorf("env override missing:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("out = %q", out)
	}
}
