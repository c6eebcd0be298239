package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"go-piano/config"
	"go-piano/debug"
	"go-piano/keymap"
)

var (
	configDir string
	debugLog  bool
	layoutArg string
	soundFont string
	portName  string
	addr      string
)

var rootCmd = &cobra.Command{
	Use:   "gopiano",
	Short: "Play piano from the computer keyboard, mouse or a MIDI keyboard",
	Long: `gopiano turns the computer keyboard, the mouse and MIDI keyboards into one
piano. Notes sound through a SoundFont synth and can be recorded to .mid files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.SetDir(configDir)
		if debugLog {
			path := debug.DefaultPath()
			if configDir != "" {
				path = filepath.Join(configDir, "debug.log")
			}
			if err := debug.Enable(path); err != nil {
				return fmt.Errorf("debug log: %w", err)
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd.Context())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", "", "config directory (default ~/.config/go-piano)")
	flags.BoolVar(&debugLog, "debug", false, "write a debug log")
	flags.StringVar(&layoutArg, "layout", "", "keyboard layout: 61 or 88")
	flags.StringVar(&soundFont, "soundfont", "", "SoundFont (.sf2) to play with")
	flags.StringVar(&portName, "port", "", "MIDI input port to connect")
	flags.StringVar(&addr, "addr", "127.0.0.1:7531", "HTTP listen address (serve)")
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

// overrides applies command line flags on top of the stored config
func overrides(cfg *config.Config) error {
	if layoutArg != "" {
		l, err := keymap.ParseLayout(layoutArg)
		if err != nil {
			return err
		}
		cfg.Performance.Layout = l
	}
	if soundFont != "" {
		cfg.Sound.SoundFont = soundFont
	}
	if portName != "" {
		cfg.AddController(config.ControllerConfig{PortName: portName, AutoConnect: true})
	}
	return nil
}
