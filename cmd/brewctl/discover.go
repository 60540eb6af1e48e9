package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/brewctl/internal/discovery"
	"github.com/example/brewctl/internal/logging"
)

func newDiscoverCommand(opts *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Enumerate networked brewing controllers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(opts.logLevel)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			devices, err := discovery.NewMDNS(log).Enumerate(ctx)
			if err != nil {
				return failed(err)
			}
			if len(devices) == 0 {
				fmt.Println("No controllers found")
				return nil
			}
			fmt.Printf("%-20s %-16s %s\n", "IDENTITY", "ADDRESS", "CAPABILITIES")
			for _, d := range devices {
				fmt.Printf("%-20s %-16s %s\n", d.Identity, d.Address, strings.Join(d.Capabilities, ","))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to browse for controllers")
	return cmd
}
