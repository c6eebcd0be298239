package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-piano/config"
	"go-piano/debug"
	"go-piano/keymap"
	"go-piano/widgets"
)

func init() {
	rootCmd.AddCommand(keysCmd)
}

var keysCmd = &cobra.Command{
	Use:     "keys LAYOUT",
	Short:   "Print which key plays each pitch of a layout",
	Example: "  gopiano keys 61\n  gopiano keys 88",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := keymap.ParseLayout(args[0])
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Println(keysChart(config.NewStore(cfg), l))
		return nil
	},
}

// keysChart renders the committed table of l, falling back to the default
// table when the stored one is invalid
func keysChart(store keymap.Store, l keymap.Layout) string {
	r := keymap.NewResolver(l)
	if err := r.Load(store); err != nil {
		debug.L().Warn("stored key bindings ignored", zap.Stringer("layout", l), zap.Error(err))
	}
	return widgets.RenderChart(widgets.BindingChart(l, r.Bindings(l)))
}
