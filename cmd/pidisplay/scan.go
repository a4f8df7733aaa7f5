package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pidisplay/internal/lcd"
)

var scanCmd = &cobra.Command{
	Use:   "scan [bus...]",
	Short: "List devices on the local I2C buses",
	Long: `Probe I2C buses on this host and list responding addresses.
Run it on the Pi to find the address of the LCD backpack, usually 0x27
or 0x3f.

Examples:
  pidisplay scan
  pidisplay scan /dev/i2c-1`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	buses := args
	if len(buses) == 0 {
		var err error
		buses, err = lcd.Buses()
		if err != nil {
			return err
		}
		if len(buses) == 0 {
			return fmt.Errorf("no I2C buses found")
		}
	}

	for _, bus := range buses {
		addrs, err := lcd.ScanBus(bus)
		if err != nil {
			logger.Warn("failed to scan bus", "bus", bus, "error", err)
			continue
		}
		if err := writeScan(os.Stdout, bus, addrs); err != nil {
			return err
		}
	}
	return nil
}

func writeScan(w io.Writer, bus string, addrs []uint16) error {
	if len(addrs) == 0 {
		_, err := fmt.Fprintf(w, "%s: no devices\n", bus)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s:\n", bus); err != nil {
		return err
	}
	for _, a := range addrs {
		if _, err := fmt.Fprintf(w, "  0x%02x\n", a); err != nil {
			return err
		}
	}
	return nil
}
