package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"go-piano/theme"
	"go-piano/tui"
)

var palettePath string

func init() {
	playCmd.Flags().StringVar(&palettePath, "palette", "", "GIMP palette (.gpl) for the keyboard colors")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play in the terminal (default)",
	Long: `Play with the computer keyboard, the mouse (click and drag across the
keyboard strip) and any connected MIDI keyboard.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd.Context())
	},
}

func runPlay(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	palette, err := theme.LoadOrDefault(palettePath)
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}

	m := tui.NewModel(ctx, s.engine, s.devices, theme.New(palette), s.cfg.TakesDir())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithReportFocus())

	_, err = p.Run()
	if err != nil {
		err = fmt.Errorf("terminal: %w", err)
	}
	return multierr.Append(err, s.Close())
}
