package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/stdkoehler/gamemaister-cli/internal/tui"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Open the interactive mission screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(os.Stdin.Fd()) {
			return fmt.Errorf("play needs an interactive terminal; use 'gamemaister send' instead")
		}

		st, err := buildStack()
		if err != nil {
			return err
		}
		if err := st.mgr.ValidateOnStartup(cmd.Context()); err != nil {
			return err
		}

		if !st.store.Snapshot().Active() {
			return fmt.Errorf("no active mission; run 'gamemaister mission new' or 'gamemaister mission load <id>' first")
		}

		return tui.Run(st.store, st.eng)
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
}
