package cmd

import (
	"fmt"
	"time"

	"github.com/sergev/floppybridge/protocol/variantf"

	"github.com/spf13/cobra"
)

var rotationCmd = &cobra.Command{
	Use:   "rotation",
	Short: "Measure the inserted disk's rotation speed and bit rate",
	Long:  "Spin up the motor, seek to cylinder 0, and sample one revolution to estimate RPM and bit rate (Variant F only).",
	Run: func(cmd *cobra.Command, args []string) {
		if floppyBridge == nil {
			cobra.CheckErr(fmt.Errorf("bridge not available"))
		}

		gw, ok := floppyBridge.Controller().(*variantf.Client)
		if !ok {
			cobra.CheckErr(fmt.Errorf("rotation detection is only available for variant f controllers"))
		}

		floppyBridge.SetMotor(true)
		for !floppyBridge.IsReady() {
			time.Sleep(20 * time.Millisecond)
		}
		floppyBridge.GotoCylinder(0, false)
		time.Sleep(300 * time.Millisecond)

		info, err := gw.DetectRotation()
		floppyBridge.SetMotor(false)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("detect rotation: %w", err))
		}

		fmt.Printf("Rotation speed: %d RPM\n", info.RPM)
		fmt.Printf("Bit rate: %d kbps (sampled %d bits)\n", info.BitRateKbps, info.DecodedBits)
		if !info.MatchesNominal {
			fmt.Printf("Warning: bit rate deviates from the assumed 2us/500kbps DD nominal.\n")
		}
	},
}

func init() {
	rootCmd.AddCommand(rotationCmd)
}
