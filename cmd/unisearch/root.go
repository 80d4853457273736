package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"unisearch/internal/domain"
	"unisearch/internal/infra/config"
	"unisearch/internal/infra/logger"
	"unisearch/internal/infra/tracer"
)

const defaultConfigPath = "./unisearch.yaml"

// app carries per-invocation state shared by all commands.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	exitCode   int
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "unisearch: %v\n", err)
		return 1
	}
	return a.exitCode
}

func newRootCmd(a *app) *cobra.Command {
	root := newSearchCmd(a)
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "config file path")

	root.AddCommand(newProvidersCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newScoreCmd(a))
	root.AddCommand(newEncryptCmd(a))
	return root
}

// runtime is the loaded configuration plus the ambient services built from it.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	shutdown func(context.Context) error
}

// bootstrap loads config and sets up logging and tracing. Logs default to
// the command's stderr so stdout carries only command output.
func (a *app) bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, domain.NewDomainError("Config.Load", domain.ErrConfigLoad, err.Error())
	}

	rt := &runtime{cfg: cfg, closeLog: func() error { return nil }}
	switch strings.ToLower(cfg.Logger.Output) {
	case "", "stderr":
		rt.logger = logger.NewWithWriter(cfg.Logger, a.stderr)
	default:
		log, closeLog, err := logger.New(cfg.Logger)
		if err != nil {
			return nil, domain.NewDomainError("Config.Load", domain.ErrConfigLoad, err.Error())
		}
		rt.logger, rt.closeLog = log, closeLog
	}

	shutdown, err := tracer.Setup(ctx, cfg.Tracer, a.stderr)
	if err != nil {
		rt.closeLog()
		return nil, domain.NewDomainError("Config.Load", domain.ErrConfigLoad, err.Error())
	}
	rt.shutdown = shutdown
	return rt, nil
}

func (rt *runtime) close() {
	if err := rt.shutdown(context.Background()); err != nil {
		rt.logger.Warn("tracer shutdown failed", "error", err)
	}
	if err := rt.closeLog(); err != nil {
		rt.logger.Warn("log close failed", "error", err)
	}
}

// writeJSON prints v as indented JSON without HTML escaping.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
