package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

var regenCmd = &cobra.Command{
	Use:   "regen",
	Short: "Regenerate the pending model output for the last player input",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		if err := st.mgr.ValidateOnStartup(cmd.Context()); err != nil {
			return err
		}

		var printed int
		st.store.Subscribe(func(s session.Session) {
			out := s.PendingModelOutput
			if len(out) < printed {
				printed = len(out)
				return
			}
			fmt.Fprint(os.Stdout, out[printed:])
			printed = len(out)
		})

		err = st.eng.Regenerate(cmd.Context())
		fmt.Fprintln(os.Stdout)
		return err
	},
}

func init() {
	rootCmd.AddCommand(regenCmd)
}
