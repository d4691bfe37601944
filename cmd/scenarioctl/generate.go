package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/app"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/pipeline"
)

type generateOptions struct {
	phishingType string
	difficulty   string
	seedInfo     string
	out          string
	save         bool
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a scenario tree synchronously",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.phishingType, "type", "t", "", "phishing type, e.g. 스미싱")
	cmd.Flags().StringVarP(&opts.difficulty, "difficulty", "d", "medium", "easy, medium or hard")
	cmd.Flags().StringVar(&opts.seedInfo, "seed", "", "optional seed information for the story")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write JSON to file instead of stdout")
	cmd.Flags().BoolVar(&opts.save, "save", false, "also save the tree to the configured storage")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	difficulty, err := model.ParseDifficulty(opts.difficulty)
	if err != nil {
		return err
	}
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pl, err := app.NewPipeline(cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tree, err := pl.Builder.Build(ctx, pipeline.RootRequest{
		PhishingType: opts.phishingType,
		Difficulty:   difficulty,
		SeedInfo:     opts.seedInfo,
	}, func(phase pipeline.Phase, percent int) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", percent, phase)
	})
	if err != nil {
		return err
	}

	if opts.save {
		repo, closeRepo, err := app.OpenScenarioRepository(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeRepo()
		if err := repo.Save(ctx, tree); err != nil {
			return fmt.Errorf("failed to save scenario: %w", err)
		}
		log.Info("Scenario saved", zap.String("scenario_id", tree.ID), zap.String("backend", cfg.Storage.Backend))
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	if opts.out == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	return os.WriteFile(opts.out, append(data, '\n'), 0o644)
}
