package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"go-piano/config"
	"go-piano/keymap"
)

var resetBindings bool

func init() {
	bindCmd.Flags().BoolVar(&resetBindings, "reset", false, "restore the default table of LAYOUT")
	rootCmd.AddCommand(bindCmd)
}

var bindCmd = &cobra.Command{
	Use:   "bind LAYOUT [KEY PITCH]",
	Short: "Bind a key to a pitch, or reset a layout's bindings",
	Long: `Binds KEY (as typed in the terminal, e.g. "a", "shift+a", "ctrl+q") to PITCH
(MIDI number or note name like C4) in LAYOUT (61 or 88). A key already bound
elsewhere moves; the pitch's previous key is unbound.`,
	Example: `  gopiano bind 61 a C4
  gopiano bind 88 shift+t 61
  gopiano bind --reset 61`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("missing LAYOUT")
		}
		l, err := keymap.ParseLayout(args[0])
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store := config.NewStore(cfg)

		if resetBindings {
			if len(args) != 1 {
				return fmt.Errorf("--reset takes only LAYOUT")
			}
			if err := store.ResetBindings(l); err != nil {
				return err
			}
			fmt.Printf("%s-key layout restored to defaults\n", l)
			return nil
		}

		if len(args) != 3 {
			return fmt.Errorf("want LAYOUT KEY PITCH")
		}
		pitch, err := parsePitch(args[2])
		if err != nil {
			return err
		}
		return bind(store, l, args[1], pitch)
	},
}

func bind(store *config.Store, l keymap.Layout, key string, pitch int) error {
	r := keymap.NewResolver(l)
	if err := r.Load(store); err != nil {
		return err
	}
	if err := r.BeginEdit(); err != nil {
		return err
	}
	if err := r.SetBinding(key, pitch); err != nil {
		r.Discard()
		return err
	}
	if err := r.Commit(store); err != nil {
		return err
	}
	k, _ := r.KeyFor(pitch, l)
	fmt.Printf("%s-key layout: %s plays %s (%d)\n", l, k, keymap.NoteName(pitch), pitch)
	return nil
}

// parsePitch accepts a MIDI number or a note name such as C4 or F#3
func parsePitch(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	for p := 0; p <= 127; p++ {
		if keymap.NoteName(p) == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("not a pitch: %q", s)
}
