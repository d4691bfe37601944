// Package pipeline строит дерево сценария: корень, послойное параллельное
// расширение, обучающие блоки, картинки, проверка и починка структуры.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chris40461/scam-or-safe/internal/config"
	"github.com/chris40461/scam-or-safe/internal/llm"
	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/retry"
	"github.com/chris40461/scam-or-safe/internal/validation"
)

// ErrPipelineTimeout построение не уложилось в общий таймаут. Дерево не возвращается.
var ErrPipelineTimeout = errors.New("pipeline timeout exceeded")

// Phase этап конвейера.
type Phase string

const (
	PhaseSeed     Phase = "seed"
	PhaseExpand   Phase = "expand"
	PhaseEnrich   Phase = "enrich"
	PhaseImage    Phase = "image"
	PhaseValidate Phase = "validate"
	PhaseDone     Phase = "done"
)

// ProgressFunc получает этап и процент готовности. Может быть nil.
type ProgressFunc func(phase Phase, percent int)

// Options параметры построения.
type Options struct {
	MaxDepth       int
	MaxChoices     int
	Concurrency    int
	RetryCount     int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
	EnrichEnabled  bool
	RepairRounds   int
}

// OptionsFromConfig переносит параметры из конфигурации.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		MaxDepth:       cfg.MaxDepth,
		MaxChoices:     cfg.MaxChoices,
		Concurrency:    cfg.GenerationConcurrency,
		RetryCount:     cfg.RetryCount,
		RetryBaseDelay: cfg.RetryBaseDelay,
		Timeout:        cfg.Timeout,
		EnrichEnabled:  cfg.EnrichEnabled,
		RepairRounds:   cfg.RepairRounds,
	}
}

// Builder оркестратор построения дерева. Безопасен для одновременных Build:
// семафор вызовов модели общий для всех построений.
type Builder struct {
	opts       Options
	generator  *Generator
	compressor *Compressor
	images     *ImageRenderer
	repairer   *validation.Repairer
	logger     *zap.Logger
}

// NewBuilder создаёт оркестратор. images может быть nil, тогда этап картинок пропускается.
func NewBuilder(textGen llm.TextGenerator, images *ImageRenderer, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RepairRounds < 1 {
		opts.RepairRounds = 3
	}
	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	policy := retry.New("llm", opts.RetryCount, opts.RetryBaseDelay, logger)

	return &Builder{
		opts:       opts,
		generator:  NewGenerator(textGen, sem, policy, opts.MaxChoices, logger),
		compressor: NewCompressor(textGen, sem, policy, logger),
		images:     images,
		repairer:   validation.NewRepairer(opts.MaxDepth, logger),
		logger:     logger.Named("TreeBuilder"),
	}
}

// Options возвращает параметры построения.
func (b *Builder) Options() Options { return b.opts }

// Build строит полное дерево. Возвращает либо корректное дерево, либо ошибку
// (ErrPipelineTimeout при истечении общего таймаута, ошибку контекста при отмене).
func (b *Builder) Build(ctx context.Context, req RootRequest, progress ProgressFunc) (*model.ScenarioTree, error) {
	if strings.TrimSpace(req.PhishingType) == "" {
		return nil, model.ErrEmptyPhishingType
	}
	if req.Difficulty == "" {
		req.Difficulty = model.DifficultyMedium
	}
	if progress == nil {
		progress = func(Phase, int) {}
	}
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	run := &buildRun{b: b, req: req, progress: progress, started: time.Now()}
	tree, err := run.execute(ctx)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrPipelineTimeout) {
			status = "timeout"
		}
		buildsTotal.WithLabelValues(status).Inc()
		b.logger.Error("Scenario build failed",
			zap.String("phishing_type", req.PhishingType),
			zap.Int("nodes_so_far", run.nodeCount()),
			zap.Duration("elapsed", time.Since(run.started)),
			zap.Error(err))
		return nil, err
	}
	buildsTotal.WithLabelValues("success").Inc()
	return tree, nil
}

// frontierEntry пара (родитель, ещё не раскрытый выбор).
type frontierEntry struct {
	parent *model.ScenarioNode
	choice *model.Choice
}

// buildRun состояние одного построения.
type buildRun struct {
	b        *Builder
	req      RootRequest
	progress ProgressFunc
	started  time.Time
	log      *zap.Logger

	tree          *model.ScenarioTree
	counter       int
	fallbackNodes int
}

func (r *buildRun) nodeCount() int {
	if r.tree == nil {
		return 0
	}
	return len(r.tree.Nodes)
}

func (r *buildRun) checkpoint(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrPipelineTimeout, r.b.opts.Timeout)
	}
	return err
}

func (r *buildRun) phase(p Phase, started time.Time) {
	phaseDuration.WithLabelValues(string(p)).Observe(time.Since(started).Seconds())
}

func (r *buildRun) execute(ctx context.Context) (*model.ScenarioTree, error) {
	opts := r.b.opts

	// Seed
	start := time.Now()
	r.progress(PhaseSeed, 0)
	r.seed(ctx)
	r.phase(PhaseSeed, start)
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}
	r.progress(PhaseSeed, 10)

	// Expand
	start = time.Now()
	frontier := make([]frontierEntry, 0, len(r.tree.Nodes[r.tree.RootNodeID].Choices))
	root := r.tree.Nodes[r.tree.RootNodeID]
	for _, c := range root.Choices {
		frontier = append(frontier, frontierEntry{parent: root, choice: c})
	}
	for level := 1; len(frontier) > 0; level++ {
		frontier = r.expandLevel(ctx, frontier)
		if err := r.checkpoint(ctx); err != nil {
			return nil, err
		}
		r.progress(PhaseExpand, 10+50*min(level, opts.MaxDepth)/max(opts.MaxDepth, 1))
		r.log.Debug("Level expanded", zap.Int("level", level), zap.Int("next_frontier", len(frontier)), zap.Int("nodes", len(r.tree.Nodes)))
	}
	r.phase(PhaseExpand, start)

	// Enrich
	genericEducation := 0
	if opts.EnrichEnabled {
		start = time.Now()
		genericEducation = r.b.enrich(ctx, r.tree)
		r.phase(PhaseEnrich, start)
		if err := r.checkpoint(ctx); err != nil {
			return nil, err
		}
	}
	r.progress(PhaseEnrich, 75)

	// Image
	var images ImageReport
	if r.b.images != nil {
		start = time.Now()
		images = r.b.images.Render(ctx, r.tree, r.b.images.KeyNodes)
		r.phase(PhaseImage, start)
		if err := r.checkpoint(ctx); err != nil {
			return nil, err
		}
	}
	r.progress(PhaseImage, 90)

	// Validate
	start = time.Now()
	rounds := r.validateAndRepair()
	r.phase(PhaseValidate, start)
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.tree.Metadata = map[string]any{
		"max_depth":           opts.MaxDepth,
		"max_choices":         opts.MaxChoices,
		"node_count":          len(r.tree.Nodes),
		"fallback_nodes":      r.fallbackNodes,
		"generic_educational": genericEducation,
		"repair_rounds":       rounds,
		"images_requested":    images.Requested,
		"images_generated":    images.Generated,
		"build_duration_ms":   time.Since(r.started).Milliseconds(),
	}
	r.progress(PhaseDone, 100)
	r.log.Info("Scenario tree built",
		zap.Int("nodes", len(r.tree.Nodes)),
		zap.Int("fallback_nodes", r.fallbackNodes),
		zap.Int("repair_rounds", rounds),
		zap.Duration("elapsed", time.Since(r.started)))
	return r.tree, nil
}

func (r *buildRun) seed(ctx context.Context) {
	root := r.b.generator.GenerateRoot(ctx, r.req)

	r.tree = &model.ScenarioTree{
		ID:           newScenarioID(),
		Title:        fmt.Sprintf("%s 시나리오", r.req.PhishingType),
		Description:  fmt.Sprintf("%s을 체험하는 교육 시나리오입니다.", r.req.PhishingType),
		PhishingType: r.req.PhishingType,
		Difficulty:   r.req.Difficulty,
		Nodes:        make(map[string]*model.ScenarioNode),
		Prologue:     root.Prologue,
		CreatedAt:    time.Now().UTC(),
	}
	r.log = r.b.logger.With(zap.String("scenario_id", r.tree.ID))

	r.tree.Protagonist = root.Protagonist

	node := r.attach(root.NodeResult, 0, nil, nil)
	r.tree.RootNodeID = node.ID
	r.log.Info("Root generated",
		zap.String("phishing_type", r.req.PhishingType),
		zap.Int("choices", len(node.Choices)),
		zap.Bool("fallback", root.Fallback),
		zap.Bool("protagonist", r.tree.Protagonist != nil))
}

// expandLevel раскрывает весь фронтир одного уровня параллельно. Узлы
// добавляются в дерево только после барьера, поэтому задачи одного уровня
// видят лишь уже готовые уровни выше.
func (r *buildRun) expandLevel(ctx context.Context, frontier []frontierEntry) []frontierEntry {
	results := make([]NodeResult, len(frontier))

	var g errgroup.Group
	for i, e := range frontier {
		g.Go(func() error {
			results[i] = r.expandEntry(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	var next []frontierEntry
	for i, e := range frontier {
		node := r.attach(results[i], e.parent.Depth+1, e.parent, e.choice)
		for _, c := range node.Choices {
			next = append(next, frontierEntry{parent: node, choice: c})
		}
	}
	return next
}

func (r *buildRun) expandEntry(ctx context.Context, e frontierEntry) NodeResult {
	opts := r.b.opts
	path := r.tree.TracePath(e.parent.ID)

	pathChoices := make([]*model.Choice, 0, len(path))
	for _, s := range path {
		if s.Choice != nil {
			pathChoices = append(pathChoices, s.Choice)
		}
	}
	pathChoices = append(pathChoices, e.choice)

	resources := model.ComputeResources(path).Apply(e.choice.ResourceEffect)
	depth := e.parent.Depth + 1
	signal := EvaluateEndSignal(resources, depth, opts.MaxDepth, pathChoices)
	story := r.b.compressor.Compress(ctx, path, depth, e.choice.Text)

	return r.b.generator.GenerateContinuation(ctx, GenerationContext{
		PhishingType:        r.req.PhishingType,
		Difficulty:          r.req.Difficulty,
		StoryPath:           story,
		ChoiceTaken:         e.choice.Text,
		LastChoiceDangerous: e.choice.IsDangerous,
		Resources:           resources,
		Depth:               depth,
		MaxDepth:            opts.MaxDepth,
		Signal:              signal,
		Protagonist:         r.tree.Protagonist,
	})
}

// attach выделяет ID, добавляет узел в дерево и связывает выбор родителя.
func (r *buildRun) attach(res NodeResult, depth int, parent *model.ScenarioNode, via *model.Choice) *model.ScenarioNode {
	r.counter++
	id := fmt.Sprintf("node_%03d", r.counter)

	node := &model.ScenarioNode{
		ID:          id,
		Type:        res.Type,
		Text:        res.Text,
		Choices:     make([]*model.Choice, 0, len(res.Choices)),
		ImagePrompt: res.ImagePrompt,
		Depth:       depth,
	}
	for i, c := range res.Choices {
		node.Choices = append(node.Choices, &model.Choice{
			ID:             fmt.Sprintf("%s_c%d", id, i+1),
			Text:           c.Text,
			IsDangerous:    c.IsDangerous,
			ResourceEffect: c.ResourceEffect.Clamped(),
		})
	}
	if parent != nil && via != nil {
		node.ParentNodeID = parent.ID
		node.ParentChoiceID = via.ID
		via.NextNodeID = id
	}

	r.tree.Nodes[id] = node
	if res.Fallback {
		r.fallbackNodes++
	}
	nodesGenerated.WithLabelValues(string(node.Type)).Inc()
	return node
}

func (r *buildRun) validateAndRepair() int {
	rounds := 0
	for rounds < r.b.opts.RepairRounds {
		defects := validation.Validate(r.tree, r.b.opts.MaxDepth)
		if len(defects) == 0 {
			return rounds
		}
		rounds++
		report := r.b.repairer.Repair(r.tree, defects)
		for kind, n := range report.Applied {
			repairsTotal.WithLabelValues(string(kind)).Add(float64(n))
		}
	}
	if defects := validation.Validate(r.tree, r.b.opts.MaxDepth); len(defects) > 0 {
		r.log.Warn("Tree still has defects after repair",
			zap.Int("rounds", rounds),
			zap.Any("defects", validation.CountByKind(defects)))
	}
	return rounds
}

func newScenarioID() string {
	return "scenario_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
