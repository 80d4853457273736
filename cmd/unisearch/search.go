package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"unisearch/internal/adapter/history"
	"unisearch/internal/adapter/invoke"
	"unisearch/internal/adapter/provider"
	"unisearch/internal/domain"
	"unisearch/internal/usecase/dispatch"
)

type searchOptions struct {
	query    string
	mode     string
	provider string
	count    int
	content  bool
	timeout  time.Duration
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "unisearch [flags] [query words...]",
		Short: "Search through an ordered chain of providers",
		Long: "unisearch sends a query to one provider, or tries the configured providers in order\n" +
			"until one answers, and prints the result as a JSON envelope.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "search text (or pass it as positional words)")
	f.StringVar(&opts.mode, "mode", string(domain.ModeDefault), "search mode: default|current")
	f.StringVar(&opts.provider, "provider", domain.SelectionAuto, "auto, or a provider id")
	f.IntVarP(&opts.count, "count", "n", domain.DefaultResultCount, "number of results")
	f.BoolVar(&opts.content, "content", false, "include page content where the provider supports it")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-provider timeout override")
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, opts searchOptions, args []string) error {
	ctx := cmd.Context()

	text := opts.query
	if text == "" {
		text = strings.Join(args, " ")
	}
	// Reject bad input before touching the config file. -n 0 is an error
	// here, not a request for the default count.
	mode, err := domain.ParseMode(opts.mode)
	q := domain.Query{
		Text:    strings.TrimSpace(text),
		Mode:    mode,
		Count:   opts.count,
		Content: opts.content,
	}
	if err == nil {
		err = q.Validate()
	}
	if err != nil {
		return a.emit(dispatch.ValidationEnvelope(err, domain.Mode(opts.mode)))
	}

	rt, err := a.bootstrap(ctx)
	if err != nil {
		return a.emit(dispatch.ValidationEnvelope(err, q.Mode))
	}
	defer rt.close()
	cfg := rt.cfg

	if opts.timeout > 0 {
		cfg.Dispatch.DefaultTimeout = opts.timeout
		for i := range cfg.Providers {
			cfg.Providers[i].Timeout = opts.timeout
		}
	}
	if !cmd.Flags().Changed("count") && cfg.Dispatch.DefaultCount > 0 {
		q.Count = cfg.Dispatch.DefaultCount
	}

	reg, err := provider.FromConfig(cfg)
	if err != nil {
		return a.emit(dispatch.ValidationEnvelope(
			domain.NewDomainError("Config.Load", domain.ErrConfigLoad, err.Error()), q.Mode))
	}
	rt.logger.Debug("providers loaded", "chain", reg.Names())

	deps := dispatch.Deps{
		Registry: reg,
		Invoker: invoke.New(invoke.Options{
			MaxOutputBytes: cfg.Dispatch.MaxOutputBytes,
			KillGrace:      cfg.Dispatch.KillGrace,
			DefaultTimeout: cfg.Dispatch.DefaultTimeout,
		}, rt.logger),
		DefaultTimeout: cfg.Dispatch.DefaultTimeout,
		Logger:         rt.logger,
	}
	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			rt.logger.Warn("history disabled", "path", cfg.History.Path, "error", err)
		} else {
			defer store.Close()
			deps.Recorder = store
		}
	}

	result, err := dispatch.New(deps).Dispatch(ctx, dispatch.Request{Query: q, Provider: opts.provider})
	if err != nil {
		return a.emit(dispatch.ValidationEnvelope(err, q.Mode))
	}
	return a.emit(dispatch.BuildEnvelope(result))
}

// emit prints an envelope and records its exit code.
func (a *app) emit(env dispatch.Envelope) error {
	a.exitCode = env.ExitCode
	return writeJSON(a.stdout, env)
}
