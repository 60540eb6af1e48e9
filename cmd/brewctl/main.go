// main.go bootstraps brewctl: it builds the root Cobra command, wires the
// viper environment overlay, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exit codes: 0 success, 1 engine/stack failure, 2 user error.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// runError marks failures that happened after argument parsing succeeded,
// so the operator can tell a failed run from a mistyped command.
type runError struct{ err error }

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

func failed(err error) error {
	if err == nil {
		return nil
	}
	return &runError{err: err}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		os.Exit(exitOK)
	}
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(exitOK)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	var re *runError
	if errors.As(err, &re) {
		os.Exit(exitFailure)
	}
	os.Exit(exitUsage)
}

type globalOptions struct {
	dir      string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{dir: ".", logLevel: "info"}
	cmd := &cobra.Command{
		Use:           "brewctl",
		Short:         "Manage a brewing-control stack on this host",
		Long:          "brewctl installs, upgrades, and operates the containerized brewing-control stack: it migrates persisted configuration across versions, discovers networked controllers, and converges running services to the declared set.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "d", opts.dir, "Stack directory holding docker-compose.yml, .env, and .brewctl state")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level for brewctl output (debug, info, warn, error)")

	cmd.AddCommand(
		newInstallCommand(opts),
		newUpCommand(opts),
		newDownCommand(opts),
		newUpdateCommand(opts),
		newMigrateCommand(opts),
		newDiscoverCommand(opts),
		newStatusCommand(opts),
		newFlashCommand(opts),
		newBootloaderCommand(opts),
		newWifiCommand(opts),
		newVersionCommand(),
	)
	bindViper(cmd)
	return cmd
}

// bindViper lets every flag be set through the environment
// (BREWCTL_LOG_LEVEL and friends) or an optional config file named by
// BREWCTL_CONFIG.
func bindViper(root *cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("BREWCTL")
	v.AutomaticEnv()
	configFile := os.Getenv("BREWCTL_CONFIG")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	cobra.OnInitialize(func() {
		commands := append([]*cobra.Command{root}, root.Commands()...)
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if configFile != "" {
			if err := v.ReadInConfig(); err != nil {
				cobra.CheckErr(err)
			}
		}
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed || !v.IsSet(f.Name) {
						return
					}
					val := fmt.Sprintf("%v", v.Get(f.Name))
					if val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}
