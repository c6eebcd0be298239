package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"go-piano/midi"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer midi.Close()

		fmt.Printf("(waiting up to %s...)\n", midi.ScanTimeout)
		pl, err := midi.ListPorts(midi.ScanTimeout)
		if errors.Is(err, midi.ErrPortsTimeout) {
			fmt.Println("\nTIMEOUT! The MIDI system is hung.")
			fmt.Println("Fix (macOS): sudo killall coreaudiod midiserver")
			return err
		}

		fmt.Println("=== MIDI Input Ports ===")
		for i, name := range pl.In {
			note := ""
			if midi.IsVirtual(name) {
				note = "  (virtual, not auto-connected)"
			}
			fmt.Printf("  %d: %s%s\n", i, name, note)
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, name := range pl.Out {
			fmt.Printf("  %d: %s\n", i, name)
		}
		return nil
	},
}
