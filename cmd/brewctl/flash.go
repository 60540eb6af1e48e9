package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/brewctl/internal/envfile"
)

// Firmware operations need exclusive USB access, so the stack is stopped
// before the flasher container runs.

// flasherOps maps each firmware command to the flasher-container
// operations it runs, in order. Flash triggers DFU mode first.
var flasherOps = map[string][]string{
	"flash":      {"trigger-dfu", "flash"},
	"bootloader": {"flash-bootloader"},
	"wifi":       {"wifi"},
}

func newFlashCommand(opts *globalOptions) *cobra.Command {
	return newFlasherCommand(opts, "flash",
		"Flash controller firmware over USB",
		`Stop running services, pull the flasher image, and run the flash
command against the controller connected over USB.`)
}

func newBootloaderCommand(opts *globalOptions) *cobra.Command {
	return newFlasherCommand(opts, "bootloader",
		"Flash the controller bootloader over USB",
		`Stop running services, pull the flasher image, and rewrite the
bootloader on the controller connected over USB.`)
}

func newWifiCommand(opts *globalOptions) *cobra.Command {
	return newFlasherCommand(opts, "wifi",
		"Configure controller WiFi credentials over USB",
		`Stop running services, pull the flasher image, and run the
interactive WiFi setup against the controller connected over USB.`)
}

// newFlasherCommand builds one flasher-container command: every firmware
// operation stops the stack, optionally pulls the image, then runs the
// flasher with the operator's terminal attached.
func newFlasherCommand(opts *globalOptions, use, short, long string) *cobra.Command {
	var (
		release string
		pull    bool
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := stackExec(opts)
			if err != nil {
				return err
			}
			dir, err := filepath.Abs(opts.dir)
			if err != nil {
				return err
			}
			if release == "" {
				release, err = envfile.Get(filepath.Join(dir, ".env"), envfile.KeyRelease)
				if err != nil {
					return err
				}
				if release == "" {
					release = "edge"
				}
			}
			image := "brewstack/firmware-flasher:" + release

			fmt.Println("Connect the controller over USB, then press ENTER")
			if _, err := fmt.Scanln(); err != nil && err.Error() != "unexpected newline" {
				return err
			}

			if err := rt.Down(cmd.Context()); err != nil {
				return failed(err)
			}
			if pull {
				if err := rt.RunInteractive(cmd.Context(), "pull", image); err != nil {
					return failed(err)
				}
			}
			for _, op := range flasherOps[use] {
				err := rt.RunInteractive(cmd.Context(),
					"run", "-it", "--rm", "--privileged", "-v", "/dev:/dev", image, op)
				if err != nil {
					return failed(err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&release, "release", "", "Flasher release track (defaults to the stack's release)")
	cmd.Flags().BoolVar(&pull, "pull", true, "Pull the flasher image before running")
	return cmd
}
