package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/brewctl/internal/envfile"
	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

func TestRunInstallSeedsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "brewstack")
	if err := runInstall(dir, "edge", false); err != nil {
		t.Fatalf("install: %v", err)
	}

	vals, err := envfile.Read(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatal(err)
	}
	if vals[envfile.KeyCfgVersion] != "0.0.0" {
		t.Fatalf("cfg version = %q", vals[envfile.KeyCfgVersion])
	}
	if vals[envfile.KeyRelease] != "edge" {
		t.Fatalf("release = %q", vals[envfile.KeyRelease])
	}

	set, err := compose.LoadFile(filepath.Join(dir, "docker-compose.yml"))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if set.Len() == 0 {
		t.Fatal("no services seeded")
	}

	rec, err := state.NewStore(dir).Load()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if rec.InstalledVersion != "0.0.0" || len(rec.AppliedMigrations) != 0 {
		t.Fatalf("unexpected fresh record: %+v", rec)
	}
}

func TestRunInstallRefusesExistingStack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte("services: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runInstall(dir, "edge", false); err == nil {
		t.Fatal("expected refusal without --force")
	}
	if err := runInstall(dir, "edge", true); err != nil {
		t.Fatalf("--force should proceed: %v", err)
	}
}

func TestDefaultServiceSetValid(t *testing.T) {
	set := defaultServiceSet("edge")
	if err := set.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, d := range set.Enabled() {
		if d.Image == "" {
			t.Fatalf("service %s has no image", d.Name)
		}
	}
}

func TestInstallHonorsGlobalDirFlag(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "elsewhere")
	root := newRootCommand()
	root.SetArgs([]string{"install", "-d", dir})
	if err := root.Execute(); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "docker-compose.yml")); err != nil {
		t.Fatalf("stack not created under the --dir directory: %v", err)
	}
	if _, err := state.NewStore(dir).Load(); err != nil {
		t.Fatalf("state record missing under the --dir directory: %v", err)
	}
}

func TestFirmwareCommandsRegistered(t *testing.T) {
	wantOps := map[string][]string{
		"flash":      {"trigger-dfu", "flash"},
		"bootloader": {"flash-bootloader"},
		"wifi":       {"wifi"},
	}
	root := newRootCommand()
	for use, ops := range wantOps {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Use == use {
				found = true
			}
		}
		if !found {
			t.Fatalf("command %q not registered", use)
		}
		got := flasherOps[use]
		if len(got) != len(ops) {
			t.Fatalf("%s operations = %v, want %v", use, got, ops)
		}
		for i := range got {
			if got[i] != ops[i] {
				t.Fatalf("%s operations = %v, want %v", use, got, ops)
			}
		}
	}
}

func TestRunErrorClassification(t *testing.T) {
	base := errors.New("boom")
	wrapped := failed(base)
	var re *runError
	if !errors.As(wrapped, &re) {
		t.Fatal("failed() must wrap into runError")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("runError must unwrap to the cause")
	}
	if failed(nil) != nil {
		t.Fatal("failed(nil) must stay nil")
	}
}
