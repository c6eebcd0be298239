package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-piano/keymap"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE.mid",
	Short: "Print the notes of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := smf.ReadFrom(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		inspect(s)
		return nil
	},
}

func inspect(s *smf.SMF) {
	fmt.Printf("format %d, %s, %d track(s)\n", s.Format(), s.TimeFormat, len(s.Tracks))
	ticks, _ := s.TimeFormat.(smf.MetricTicks)

	for i, tr := range s.Tracks {
		fmt.Printf("\ntrack %d\n", i)
		var abs int64
		var bpm float64
		for _, ev := range tr {
			abs += int64(ev.Delta)
			var ch, key, vel uint8
			switch {
			case ev.Message.GetMetaTempo(&bpm):
				fmt.Printf("  %8d  tempo %.1f bpm\n", abs, bpm)
			case ev.Message.GetNoteStart(&ch, &key, &vel):
				fmt.Printf("  %8d  %s  on  %-4s vel %3d\n", abs, at(ticks, abs), keymap.NoteName(int(key)), vel)
			case ev.Message.GetNoteEnd(&ch, &key):
				fmt.Printf("  %8d  %s  off %-4s\n", abs, at(ticks, abs), keymap.NoteName(int(key)))
			}
		}
	}
}

// at formats an absolute tick as seconds at 120 bpm
func at(ticks smf.MetricTicks, abs int64) string {
	if ticks == 0 {
		return "      "
	}
	return fmt.Sprintf("%6.3fs", ticks.Duration(120, uint32(abs)).Seconds())
}
