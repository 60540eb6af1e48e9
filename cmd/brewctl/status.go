package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/brewctl/internal/history"
	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

func newStatusCommand(opts *globalOptions) *cobra.Command {
	var showRuns bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show installed version, service flags, and declared services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(opts.dir)
			if err != nil {
				return err
			}
			return failed(runStatus(cmd, dir, showRuns))
		},
	}
	cmd.Flags().BoolVar(&showRuns, "runs", false, "Also list recent engine runs from the journal")
	return cmd
}

func runStatus(cmd *cobra.Command, dir string, showRuns bool) error {
	rec, err := state.NewStore(dir).Load()
	switch {
	case errors.Is(err, state.ErrNotFound):
		fmt.Println("No stack installed here (run 'brewctl install')")
		return nil
	case err != nil:
		return err
	}

	fmt.Printf("Installed version: %s\n", rec.InstalledVersion)
	fmt.Printf("Applied migrations: %v\n", rec.AppliedMigrations)
	if len(rec.ServiceFlags) > 0 {
		keys := make([]string, 0, len(rec.ServiceFlags))
		for k := range rec.ServiceFlags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("Service flags:")
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", k, rec.ServiceFlags[k])
		}
	}

	set, err := compose.LoadFile(filepath.Join(dir, "docker-compose.yml"))
	if err != nil {
		return err
	}
	fmt.Println("Declared services:")
	for _, name := range set.Names() {
		d, _ := set.Get(name)
		if d.Enabled {
			fmt.Printf("  %-14s %s\n", name, d.Image)
		} else {
			color.Yellow("  %-14s %s (disabled)", name, d.Image)
		}
	}

	if !showRuns {
		return nil
	}
	journal, err := history.Open(dir)
	if err != nil {
		return err
	}
	defer journal.Close()
	runs, err := journal.List(cmd.Context(), 10)
	if err != nil {
		return err
	}
	fmt.Println("Recent runs:")
	for _, r := range runs {
		line := fmt.Sprintf("  %s  %s -> %s  %s  applied=%v", r.StartedAt.Format("2006-01-02 15:04:05"), r.FromVersion, r.ToVersion, r.Phase, r.AppliedSteps)
		if r.FailedStep != nil {
			color.Red("%s failed-step=%d", line, *r.FailedStep)
		} else {
			fmt.Println(line)
		}
	}
	return nil
}
