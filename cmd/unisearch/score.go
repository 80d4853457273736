package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"unisearch/internal/adapter/scorer"
	"unisearch/internal/domain"
)

func newScoreCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a batch of subjects with the configured analyzer",
		Long: "score reads a JSON array of subjects, runs the analyzer once per subject and\n" +
			"prints the scored subjects (highest first) and the failures. It exits 0 when at\n" +
			"least one subject was scored.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			subjects, err := readSubjects(input)
			if err != nil {
				return err
			}

			rt, err := a.bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			analyzer, err := scorer.NewAnalyzer(rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			report := scorer.NewBatch(analyzer, rt.cfg.Scorer, rt.logger).Run(cmd.Context(), subjects)
			if len(report.Scored) == 0 {
				a.exitCode = 1
			}
			return writeJSON(a.stdout, report)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "path to a JSON array of subjects")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func readSubjects(path string) ([]domain.Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subjects: %w", err)
	}
	var subjects []domain.Subject
	if err := json.Unmarshal(data, &subjects); err != nil {
		return nil, fmt.Errorf("parse subjects: %w", err)
	}
	for i, s := range subjects {
		if s.ID == "" {
			return nil, domain.NewDomainError("readSubjects", domain.ErrInvalidInput,
				fmt.Sprintf("subject %d has no id", i))
		}
	}
	return subjects, nil
}
