package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

var sendTimeout int

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one turn and stream the gamemaster's reply to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		if err := st.mgr.ValidateOnStartup(cmd.Context()); err != nil {
			return err
		}

		// Print each published fragment as a delta of the accumulated output.
		var printed int
		st.store.Subscribe(func(s session.Session) {
			out := s.PendingModelOutput
			if len(out) < printed {
				// The field was cleared at submit, or the final commit
				// trimmed whitespace. Nothing new to print either way.
				printed = len(out)
				return
			}
			fmt.Fprint(os.Stdout, out[printed:])
			printed = len(out)
		})

		timeout := sendTimeout
		if timeout == 0 {
			timeout = GetConfig().RequestTimeoutSeconds
		}
		if timeout > 0 {
			timer := time.AfterFunc(time.Duration(timeout)*time.Second, st.eng.Stop)
			defer timer.Stop()
		}

		err = st.eng.Submit(cmd.Context(), args[0])
		fmt.Fprintln(os.Stdout)
		return err
	},
}

func init() {
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 0, "stop the turn after this many seconds, keeping partial output")
	rootCmd.AddCommand(sendCmd)
}
