// Package cmd implements the CLI harness that exercises the bridge
// end-to-end, standing in for a disk-emulator host.
package cmd

import (
	"fmt"

	"github.com/sergev/floppybridge/bridge"
	"github.com/sergev/floppybridge/config"
	"github.com/sergev/floppybridge/protocol"
	"github.com/sergev/floppybridge/protocol/variantf"
	"github.com/sergev/floppybridge/protocol/variantv"

	"github.com/spf13/cobra"
)

var floppyBridge *bridge.Bridge

var rootCmd = &cobra.Command{
	Use:   "floppybridge",
	Short: "A CLI harness for the floppy-to-USB bridge controller",
	Long:  "The floppybridge tool drives a USB floppy controller as a stand-in host, for testing and diagnostics.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Initialize(); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to initialize config: %w", err))
		}

		ctrl, port, err := openController()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to open controller: %w", err))
		}

		floppyBridge = bridge.New(ctrl)
		if !floppyBridge.Initialise(port) {
			cobra.CheckErr(fmt.Errorf("failed to initialise bridge: %w", floppyBridge.LastError()))
		}
	},
}

// openController builds the protocol.Controller named by the
// configuration and resolves which port it should open.
func openController() (protocol.Controller, string, error) {
	port := config.Port

	switch config.Variant {
	case "v":
		if port == "" {
			return nil, "", fmt.Errorf("bridge.port must be set for variant v")
		}
		return variantv.New(), port, nil

	case "f":
		if port == "" {
			detected, err := variantf.DetectPort()
			if err != nil {
				return nil, "", fmt.Errorf("auto-detect controller: %w", err)
			}
			port = detected
		}
		return variantf.New(), port, nil

	default:
		return nil, "", fmt.Errorf("unknown bridge variant %q", config.Variant)
	}
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
