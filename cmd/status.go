package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

var followSession bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current mission and pending turn",
	RunE: func(cmd *cobra.Command, args []string) error {
		if followSession {
			return followState(cmd)
		}

		persist, err := session.NewDiskPersister()
		if err != nil {
			return err
		}
		s := session.NewStore(persist).Snapshot()

		if !s.Active() {
			cmd.Println("no active mission")
			return nil
		}

		cmd.Printf("Mission: %s (#%d)\n", s.MissionTitle, *s.MissionID)
		cmd.Printf("Committed turns: %d\n", len(s.History))
		if s.PendingPlayerInput != "" {
			cmd.Printf("Pending input: %s\n", preview(s.PendingPlayerInput))
		}
		if s.PendingModelOutput != "" {
			cmd.Printf("Pending output: %s\n", preview(s.PendingModelOutput))
		}
		return nil
	},
}

// followState tails the durable session file, printing model output as it is
// streamed by another gamemaister process, until interrupted.
func followState(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cmd.Println("following session state (ctrl+c to stop)")
	var printed int
	return session.Watch(ctx, func(s session.Session) {
		out := s.PendingModelOutput
		if len(out) < printed {
			fmt.Fprintln(os.Stdout)
			printed = len(out)
			return
		}
		fmt.Fprint(os.Stdout, out[printed:])
		printed = len(out)
	})
}

// preview truncates text for single-line display.
func preview(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}

func init() {
	statusCmd.Flags().BoolVarP(&followSession, "follow", "f", false, "tail the session file while another process streams")
	rootCmd.AddCommand(statusCmd)
}
