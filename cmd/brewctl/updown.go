package main

import (
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/brewctl/internal/logging"
	"github.com/example/brewctl/internal/runtime"
)

func stackExec(opts *globalOptions) (*runtime.Exec, error) {
	log, err := logging.New(opts.logLevel)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, err
	}
	return runtime.NewExec(dir, filepath.Join(dir, "docker-compose.yml"), log), nil
}

func newUpCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start all enabled services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := stackExec(opts)
			if err != nil {
				return err
			}
			if err := rt.Up(cmd.Context()); err != nil {
				return failed(err)
			}
			color.Green("Stack is up")
			return nil
		},
	}
}

func newDownCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Stop all running services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := stackExec(opts)
			if err != nil {
				return err
			}
			if err := rt.Down(cmd.Context()); err != nil {
				return failed(err)
			}
			color.Green("Stack is down")
			return nil
		},
	}
}
