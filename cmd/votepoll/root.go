//go:build !wasip1

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/reglet-dev/votepoll/config"
	"github.com/reglet-dev/votepoll/host"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// app carries the resolved configuration to subcommands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	var (
		modulePath string
		logLevel   string
		logFormat  string
	)

	root := &cobra.Command{
		Use:           "votepoll",
		Short:         "Drive a votepoll contract module",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("module") {
				cfg.ModulePath = modulePath
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			a.cfg = cfg
			a.logger = cfg.NewLogger(cmd.ErrOrStderr())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&modulePath, "module", "", "path to the contract module (env VOTEPOLL_MODULE_PATH)")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error (env VOTEPOLL_LOG_LEVEL)")
	pf.StringVar(&logFormat, "log-format", "text", "log format: text or json (env VOTEPOLL_LOG_FORMAT)")

	root.AddCommand(
		newIncrementCommand(a),
		newApplyCommand(a),
		newDemoCommand(a),
		newSchemaCommand(),
	)
	return root
}

// withInstance validates the configuration, loads the module and runs fn.
func (a *app) withInstance(ctx context.Context, fn func(*host.Instance) error) (err error) {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	executor, err := host.NewExecutor(ctx,
		host.WithLogger(a.logger),
		host.WithMemoryLimitPages(a.cfg.MemoryLimitPages),
	)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, executor.Close(ctx)) }()

	inst, err := executor.LoadContractFile(ctx, a.cfg.ModulePath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, inst.Close(ctx)) }()

	return fn(inst)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
