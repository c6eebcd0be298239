package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go-piano/debug"
	"go-piano/midi"
	"go-piano/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Play MIDI keyboards headless with an HTTP stats and recording API",
	Long: `Runs without a terminal UI. MIDI input plays through the synth; the HTTP API
serves the live snapshot and records takes:

  GET    /api/snapshot
  POST   /api/recording          arm
  DELETE /api/recording          stop, returns the take
  GET    /api/takes
  GET    /api/takes/{id}.mid
  POST   /api/panic`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !debugLog {
			debug.EnableConsole(zapcore.InfoLevel)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		go logDevices(s.devices)

		err = server.New(s.engine).ListenAndServe(ctx, addr)
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			err = nil
		}
		return multierr.Append(err, s.Close())
	},
}

func logDevices(dm *midi.DeviceManager) {
	log := debug.L().Named("midi")
	for ev := range dm.Events() {
		if ev.Err != nil {
			log.Warn(ev.Type.String(), zap.String("port", ev.ID), zap.Error(ev.Err))
			continue
		}
		log.Info(ev.Type.String(), zap.String("port", ev.ID))
	}
}
