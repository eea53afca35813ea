package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meigma/mediacache"
	"github.com/meigma/mediacache/config"
)

// app is the state shared by subcommands once the root has run.
type app struct {
	cfgPath  string
	logLevel string

	cfg         *config.Config
	logger      *slog.Logger
	coordinator *mediacache.Coordinator
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mediacache",
		Short: "Media cache and transfer pipeline",
		Long: `mediacache serves images from a local memory and disk cache backed by a
remote object store, and publishes photos as size-bounded remote assets.

Configuration is read from --config, or the file named by ` + config.EnvPath + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newLoadCmd(a),
		newPublishCmd(a),
		newPreloadCmd(a),
		newThumbnailCmd(a),
		newInvalidateCmd(a),
		newDeleteCmd(a),
		newClearCmd(a),
	)
	return root
}

func (a *app) setup(logOut io.Writer) error {
	cfg, err := config.Resolve(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(logOut, cfg.Log)

	store, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("remote backend: %w", err)
	}
	a.coordinator, err = newCoordinator(cfg, store, a.logger)
	return err
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.Level)) //nolint:errcheck // validated by config
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
