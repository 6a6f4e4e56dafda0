package cmd

import (
	"fmt"

	"github.com/sergev/floppybridge/protocol/variantf"

	"github.com/spf13/cobra"
)

var probeDiagnostics bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the controller for hardware diagnostics",
	Long:  "With --diagnostics, report bandwidth statistics and GPIO pin levels (Variant F only). Without the flag, only a usage hint is printed.",
	Run: func(cmd *cobra.Command, args []string) {
		if floppyBridge == nil {
			cobra.CheckErr(fmt.Errorf("bridge not available"))
		}

		if !probeDiagnostics {
			fmt.Printf("Pass --diagnostics for bandwidth/pin statistics.\n")
			return
		}

		gw, ok := floppyBridge.Controller().(*variantf.Client)
		if !ok {
			cobra.CheckErr(fmt.Errorf("diagnostics are only available for variant f controllers"))
		}

		diag, err := gw.Diagnostics()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("diagnostics: %w", err))
		}

		fmt.Printf("Bandwidth: min %d bytes/%d us, max %d bytes/%d us\n",
			diag.Bandwidth.MinBwBytes, diag.Bandwidth.MinBwUsecs,
			diag.Bandwidth.MaxBwBytes, diag.Bandwidth.MaxBwUsecs)
		fmt.Printf("Pins:\n")
		for pin := 1; pin <= 34; pin++ {
			level, ok := diag.Pins[pin]
			if !ok {
				continue
			}
			state := "Low"
			if level {
				state = "High"
			}
			fmt.Printf("  %2d: %s\n", pin, state)
		}
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeDiagnostics, "diagnostics", false, "fetch bandwidth and pin diagnostics")
	rootCmd.AddCommand(probeCmd)
}
