package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/brewctl/internal/discovery"
	"github.com/example/brewctl/internal/engine"
	"github.com/example/brewctl/internal/history"
	"github.com/example/brewctl/internal/logging"
	"github.com/example/brewctl/internal/migrate"
	"github.com/example/brewctl/internal/runtime"
	"github.com/example/brewctl/internal/version"
)

func newUpdateCommand(opts *globalOptions) *cobra.Command {
	var (
		target           string
		discoveryTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Migrate configuration to the target version and converge containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, opts, target, discoveryTimeout, false)
		},
	}
	cmd.Flags().StringVar(&target, "target", version.StackTarget, "Stack configuration version to converge to")
	cmd.Flags().DurationVar(&discoveryTimeout, "discovery-timeout", 5*time.Second, "How long migrations may browse for controllers")
	return cmd
}

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	var (
		target           string
		discoveryTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations without touching running containers",
		Long: `Apply every pending migration and rewrite the compose definition,
but stop before reconciling containers. Useful to review the resulting
compose file; a following 'brewctl update' or 'brewctl up' picks it up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, opts, target, discoveryTimeout, true)
		},
	}
	cmd.Flags().StringVar(&target, "target", version.StackTarget, "Stack configuration version to migrate to")
	cmd.Flags().DurationVar(&discoveryTimeout, "discovery-timeout", 5*time.Second, "How long migrations may browse for controllers")
	return cmd
}

func runEngine(cmd *cobra.Command, opts *globalOptions, target string, discoveryTimeout time.Duration, skipReconcile bool) error {
	targetVersion, err := semver.NewVersion(target)
	if err != nil {
		return fmt.Errorf("invalid --target %q: %w", target, err)
	}
	log, err := logging.New(opts.logLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return err
	}
	composeFile := filepath.Join(dir, "docker-compose.yml")

	journal, err := history.Open(dir)
	if err != nil {
		return failed(err)
	}
	defer journal.Close()

	res, runErr := engine.Run(cmd.Context(), engine.Options{
		Dir:              dir,
		ComposeFile:      composeFile,
		Target:           targetVersion,
		Registry:         migrate.Default(),
		Runtime:          runtime.NewExec(dir, composeFile, log),
		Discoverer:       discovery.NewMDNS(log),
		DiscoveryTimeout: discoveryTimeout,
		SkipReconcile:    skipReconcile,
		Journal:          journal,
		Log:              log,
	})
	printRunResult(res, runErr)
	return failed(runErr)
}

func printRunResult(res *engine.Result, err error) {
	if res == nil {
		return
	}
	if res.From != nil {
		fmt.Printf("Version: %s -> %s\n", res.From, res.To)
	}
	if len(res.Applied) > 0 {
		fmt.Printf("Migrations applied: %v\n", res.Applied)
	}
	if len(res.Skipped) > 0 {
		fmt.Printf("Migrations already applied: %v\n", res.Skipped)
	}
	for _, r := range res.Report.Results {
		if r.Err != nil {
			color.Red("  %-12s %-9s %v", r.Service, r.Action, r.Err)
		} else {
			fmt.Printf("  %-12s %-9s ok\n", r.Service, r.Action)
		}
	}
	switch {
	case err == nil && res.Phase == engine.PhaseDone:
		color.Green("Stack converged at %s", res.To)
	case res.FailedStep != nil:
		color.Red("Run failed in phase %s at migration %d; state is checkpointed, re-run to resume", res.Phase, *res.FailedStep)
	case err != nil:
		color.Red("Run failed in phase %s", res.Phase)
	}
}
