package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chris40461/scam-or-safe/internal/config"
	"github.com/chris40461/scam-or-safe/internal/imagegen"
	"github.com/chris40461/scam-or-safe/internal/model"
)

// ImageReport итог генерации картинок.
type ImageReport struct {
	Requested int      `json:"requested"`
	Generated int      `json:"generated"`
	Failed    []string `json:"failed,omitempty"`
}

// ImageRenderer генерирует картинки узлов пачками с паузами между ними
// (внутри пачки не больше MaxConcurrent запросов), затем повторяет неудачные по одной.
type ImageRenderer struct {
	gen    imagegen.Generator
	cfg    config.ImageConfig
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewImageRenderer создаёт ImageRenderer.
func NewImageRenderer(gen imagegen.Generator, cfg config.ImageConfig, logger *zap.Logger) *ImageRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageRenderer{gen: gen, cfg: cfg, logger: logger.Named("ImageRenderer"), sleep: sleepContext}
}

// KeyNodes корень и концовки, либо все узлы при IMAGE_SCOPE=all.
func (r *ImageRenderer) KeyNodes(n *model.ScenarioNode) bool {
	if r.cfg.Scope == "all" {
		return true
	}
	return n.Depth == 0 || n.Type.IsEnding()
}

// MissingImages узлы с промптом, но без картинки.
func MissingImages(n *model.ScenarioNode) bool {
	return n.ImagePrompt != "" && n.ImageURL == ""
}

// Render генерирует картинки для узлов, прошедших фильтр select и имеющих промпт.
// URL записываются в узлы после каждой пачки; ошибки не фатальны.
func (r *ImageRenderer) Render(ctx context.Context, tree *model.ScenarioTree, selectNode func(*model.ScenarioNode) bool) ImageReport {
	var targets []*model.ScenarioNode
	for _, id := range tree.SortedNodeIDs() {
		n := tree.Nodes[id]
		if n.ImagePrompt != "" && selectNode(n) {
			targets = append(targets, n)
		}
	}
	report := ImageReport{Requested: len(targets)}
	if len(targets) == 0 {
		return report
	}

	log := r.logger.With(zap.String("scenario_id", tree.ID))
	seed := imagegen.SeedFor(tree.ID)
	batchSize := max(r.cfg.BatchSize, 1)
	limit := max(r.cfg.MaxConcurrent, 1)

	var retryQueue []*model.ScenarioNode
	for start := 0; start < len(targets); start += batchSize {
		if start > 0 {
			if err := r.sleep(ctx, r.cfg.BatchWait); err != nil {
				break
			}
		}
		batch := targets[start:min(start+batchSize, len(targets))]
		urls := make([]string, len(batch))
		errs := make([]error, len(batch))

		var g errgroup.Group
		g.SetLimit(limit)
		for i, n := range batch {
			g.Go(func() error {
				urls[i], errs[i] = r.gen.Generate(ctx, imagegen.Request{
					Prompt:     n.ImagePrompt,
					NodeID:     n.ID,
					ScenarioID: tree.ID,
					Seed:       seed,
				})
				return nil
			})
		}
		_ = g.Wait()

		for i, n := range batch {
			switch {
			case errs[i] == nil && urls[i] != "":
				n.ImageURL = urls[i]
				report.Generated++
			case errors.Is(errs[i], imagegen.ErrSafetyBlocked):
				report.Failed = append(report.Failed, n.ID)
			default:
				retryQueue = append(retryQueue, n)
			}
		}
		log.Debug("Image batch finished", zap.Int("batch_start", start), zap.Int("batch_size", len(batch)))
	}

	for _, n := range retryQueue {
		if err := r.sleep(ctx, r.cfg.RetryWait); err != nil {
			report.Failed = append(report.Failed, n.ID)
			continue
		}
		url, err := r.gen.Generate(ctx, imagegen.Request{Prompt: n.ImagePrompt, NodeID: n.ID, ScenarioID: tree.ID, Seed: seed})
		if err != nil || url == "" {
			log.Warn("Image retry failed", zap.String("node_id", n.ID), zap.Error(err))
			report.Failed = append(report.Failed, n.ID)
			continue
		}
		n.ImageURL = url
		report.Generated++
	}

	log.Info("Image generation finished",
		zap.Int("requested", report.Requested),
		zap.Int("generated", report.Generated),
		zap.Int("failed", len(report.Failed)))
	return report
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
