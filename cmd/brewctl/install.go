package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/brewctl/internal/envfile"
	"github.com/example/brewctl/internal/state"
	"github.com/example/brewctl/pkg/compose"
)

const defaultInstallDir = "./brewstack"

func newInstallCommand(opts *globalOptions) *cobra.Command {
	var (
		release string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Create and seed a new stack directory",
		Long: `Create the stack directory, seed the .env file and the compose
definition, and record the configuration version as 0.0.0.

The directory comes from the global --dir flag and defaults to
` + defaultInstallDir + `. The first 'brewctl update' after install applies
every migration up to the target version, which is how a fresh host
reaches the current layout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.dir
			if !cmd.Flags().Changed("dir") {
				dir = defaultInstallDir
			}
			return failed(runInstall(dir, release, force))
		},
	}
	cmd.Flags().StringVar(&release, "release", "edge", "Release track for service images")
	cmd.Flags().BoolVar(&force, "force", false, "Proceed even when the directory already contains a stack")
	return cmd
}

func runInstall(dir, release string, force bool) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	composePath := filepath.Join(absDir, "docker-compose.yml")
	if _, err := os.Stat(composePath); err == nil && !force {
		return fmt.Errorf("%s already contains a stack (use --force to overwrite)", absDir)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return err
	}

	if err := envfile.SetAll(filepath.Join(absDir, ".env"), map[string]string{
		envfile.KeyRelease:     release,
		envfile.KeyCfgVersion:  "0.0.0",
		envfile.KeySkipConfirm: "false",
	}); err != nil {
		return err
	}

	if err := compose.WriteFile(composePath, defaultServiceSet(release)); err != nil {
		return err
	}

	if err := state.NewStore(absDir).Save(state.Fresh()); err != nil {
		return err
	}

	color.Green("Stack directory created at %s", absDir)
	fmt.Printf("Next: cd %s && brewctl update\n", dir)
	return nil
}

// defaultServiceSet is the stack as shipped: the version-zero layout that
// migrations then bring up to date.
func defaultServiceSet(release string) *compose.Set {
	set := compose.NewSet()
	for _, d := range []compose.ServiceDescriptor{
		{
			Name:    "history",
			Image:   "brewstack/history:" + release,
			Ports:   []string{"5000:5000"},
			Volumes: []string{"./history:/data"},
			Restart: "unless-stopped",
			Enabled: true,
		},
		{
			Name:    "ui",
			Image:   "brewstack/ui:" + release,
			Ports:   []string{"80:80"},
			Restart: "unless-stopped",
			Enabled: true,
		},
	} {
		// Static table; Add only fails on programming errors.
		if err := set.Add(d); err != nil {
			panic(err)
		}
	}
	return set
}
