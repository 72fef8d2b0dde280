package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stdkoehler/gamemaister-cli/internal/api"
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Manage missions: new, save, list, load",
}

var (
	newMissionType string
	newMissionName string
)

var missionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a fresh mission, replacing the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}

		missionType := newMissionType
		if missionType == "" {
			missionType = GetConfig().MissionType
		}
		sum, err := st.mgr.New(cmd.Context(), api.CreateMissionParams{
			MissionType: missionType,
			Name:        newMissionName,
		})
		if err != nil {
			return err
		}
		cmd.Printf("Mission started: %s (#%d)\n", sum.Title, sum.ID)
		return nil
	},
}

var missionSaveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Save the active mission under an optional custom name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		if !st.store.Snapshot().Active() {
			cmd.Println("no active mission; nothing to save")
			return nil
		}

		var name string
		if len(args) == 1 {
			name = args[0]
		}
		if err := st.mgr.Save(cmd.Context(), name); err != nil {
			return err
		}
		cmd.Println("Mission saved.")
		return nil
	},
}

var missionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List missions stored on the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		missions, err := st.mgr.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(missions) == 0 {
			cmd.Println("no missions on the backend")
			return nil
		}
		for _, ms := range missions {
			cmd.Printf("%6d  %s\n", ms.ID, ms.Title)
		}
		return nil
	},
}

var missionLoadCmd = &cobra.Command{
	Use:   "load <id>",
	Short: "Load a mission and its history, replacing the current session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid mission id %q", args[0])
		}

		st, err := buildStack()
		if err != nil {
			return err
		}
		if err := st.mgr.Load(cmd.Context(), id); err != nil {
			return err
		}
		s := st.store.Snapshot()
		cmd.Printf("Mission loaded: %s (#%d), %d committed turns\n", s.MissionTitle, id, len(s.History))
		return nil
	},
}

func init() {
	missionNewCmd.Flags().StringVar(&newMissionType, "type", "", "scenario type (defaults to config mission_type)")
	missionNewCmd.Flags().StringVar(&newMissionName, "name", "", "mission name")
	missionCmd.AddCommand(missionNewCmd, missionSaveCmd, missionListCmd, missionLoadCmd)
	rootCmd.AddCommand(missionCmd)
}
