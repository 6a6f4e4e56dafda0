package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sergev/floppybridge/config"

	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream [FILE]",
	Short: "Stream decoded MFM bits from every track to a file",
	Long:  "Seek every cylinder and side, wait for a full revolution to be cached, and append its raw MFM bytes to FILE.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if floppyBridge == nil {
			cobra.CheckErr(fmt.Errorf("bridge not available"))
		}

		filename := "floppy_stream.bin"
		if len(args) > 0 {
			filename = args[0]
		}
		file, err := os.Create(filename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to create output file: %w", err))
		}
		defer file.Close()

		floppyBridge.SetMotor(true)
		for !floppyBridge.IsReady() {
			time.Sleep(20 * time.Millisecond)
		}

		for cyl := 0; cyl < config.Cyls; cyl++ {
			for side := 0; side < config.Heads; side++ {
				fmt.Printf("Reading cylinder %d, side %d...\n", cyl, side)

				floppyBridge.GotoCylinder(cyl, side == 1)
				if !waitForData(300 * time.Millisecond) {
					fmt.Printf("  no revolution cached, skipping\n")
					continue
				}

				bits := floppyBridge.MaxMfmBitPosition()
				buf := make([]byte, (bits+7)/8)
				for p := 0; p < bits; p++ {
					if floppyBridge.ReadBit(p) {
						buf[p/8] |= 1 << uint(7-p%8)
					}
				}
				if _, err := file.Write(buf); err != nil {
					cobra.CheckErr(fmt.Errorf("failed to write output: %w", err))
				}
			}
		}

		floppyBridge.SetMotor(false)
		fmt.Printf("Stream written to %s\n", filename)
	},
}

// waitForData polls, up to the given budget, until a full revolution is
// cached: is_mfm_position_at_index reports true at max_mfm_bit_position
// only once the current slot is ready. A crude readiness gate, since the
// stream subcommand has no direct access to the cache.
func waitForData(budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		if bits := floppyBridge.MaxMfmBitPosition(); bits > 0 && floppyBridge.IsMfmPositionAtIndex(bits) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func init() {
	rootCmd.AddCommand(streamCmd)
}
