package main

import (
	"github.com/spf13/cobra"

	"unisearch/internal/adapter/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dispatches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			store, err := history.NewSQLiteStore(rt.cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries")
	return cmd
}
