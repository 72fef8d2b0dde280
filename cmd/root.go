package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stdkoehler/gamemaister-cli/internal/api"
	"github.com/stdkoehler/gamemaister-cli/internal/config"
	"github.com/stdkoehler/gamemaister-cli/internal/engine"
	"github.com/stdkoehler/gamemaister-cli/internal/mission"
	"github.com/stdkoehler/gamemaister-cli/internal/session"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gamemaister",
	Short: "Play turn-based narrative missions against a gamemaster backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		// Load and merge config files.
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.Merge(global, project)
		return nil
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// stack bundles the wired components every subcommand needs.
type stack struct {
	store *session.Store
	eng   *engine.Engine
	mgr   *mission.Manager
}

// buildStack hydrates the session store from disk and wires the engine and
// lifecycle manager against the configured backend.
func buildStack() (*stack, error) {
	persist, err := session.NewDiskPersister()
	if err != nil {
		return nil, err
	}
	store := session.NewStore(persist)

	clientID, err := session.LoadOrCreateClientID()
	if err != nil {
		return nil, fmt.Errorf("resolving client id: %w", err)
	}

	client := api.NewClient(cfg.BackendURL, clientID)
	return &stack{
		store: store,
		eng:   engine.New(store, engine.NewAPITransport(client)),
		mgr:   mission.NewManager(store, client),
	}, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
