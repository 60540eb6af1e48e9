package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/brewctl/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print brewctl build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("brewctl %s (stack target %s)\n", info.Version, version.StackTarget)
			fmt.Printf("  commit:   %s (%s)\n", info.GitCommit, info.GitTreeState)
			fmt.Printf("  built:    %s\n", info.BuildDate)
			fmt.Printf("  platform: %s %s\n", info.Platform, info.GoVersion)
		},
	}
}
