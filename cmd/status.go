package cmd

import (
	"fmt"

	"github.com/sergev/floppybridge/config"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the floppy bridge",
	Long:  "Check the status of the USB floppy controller and the disk it's addressing.",
	Run: func(cmd *cobra.Command, args []string) {
		if floppyBridge == nil {
			cobra.CheckErr(fmt.Errorf("bridge not available"))
		}

		fmt.Printf("Drive type: %s, %d us/cell\n", floppyBridge.DriveTypeID(), floppyBridge.BitcellUs())
		fmt.Printf("Motor running: %v, ready: %v\n", floppyBridge.IsMotorRunning(), floppyBridge.IsReady())
		fmt.Printf("Disk in drive: %v, write protected: %v\n", floppyBridge.IsDiskInDrive(), floppyBridge.IsWriteProtected())
		fmt.Printf("Cylinder: %d / %d\n", floppyBridge.CurrentCylinder(), floppyBridge.MaxCylinder())

		fmt.Printf("\nConfiguration: ~/.floppybridge.toml\n")
		fmt.Printf("Variant: %s, port: %s\n", config.Variant, config.Port)
		fmt.Printf("Geometry: %d cylinders, %d side(s), %d RPM\n", config.Cyls, config.Heads, config.RPM)

		if err := floppyBridge.LastError(); err != nil {
			fmt.Printf("\nLast error: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
