package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/conorfennell/knolstudy/internal/config"
	"github.com/conorfennell/knolstudy/internal/storage"
)

// app is the state shared by every command once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) openDB() (*storage.DB, error) {
	db, err := storage.Open(a.cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.logger.Debug("Database opened", "path", a.cfg.DB.Path)
	return db, nil
}

// newRootCmd creates the root knolstudy command with all subcommands attached.
func newRootCmd() *cobra.Command {
	a := &app{}
	d := config.Default()

	cmd := &cobra.Command{
		Use:           "knolstudy",
		Short:         "Spaced-repetition study over markdown decks",
		Long:          "knolstudy imports markdown flashcard decks and schedules their review with SM-2.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cmd.Flags(), path)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(a.logger)
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("db", d.DB.Path, "Path to the SQLite database file")
	pf.String("repos-dir", d.Sources.ReposDir, "Directory git deck sources are cloned into")
	pf.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	pf.String("log-format", d.Log.Format, "Log format: text or json")

	cmd.AddCommand(
		newServeCmd(a),
		newSourceCmd(a),
		newSyncCmd(a),
		newDueCmd(a),
	)
	return cmd
}
