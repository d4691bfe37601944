// Package service связывает построение дерева, хранилища и фоновые задачи.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/model"
	"github.com/chris40461/scam-or-safe/internal/pipeline"
	"github.com/chris40461/scam-or-safe/internal/repository"
	"github.com/chris40461/scam-or-safe/internal/taskmanager"
)

var (
	// ErrInvalidRequest некорректные входные данные (пустой тип, неизвестная сложность, чужие узлы).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrImagesDisabled генерация картинок выключена в конфигурации.
	ErrImagesDisabled = errors.New("image generation is disabled")
)

// GenerateRequest запрос на генерацию сценария.
type GenerateRequest struct {
	// TaskID задаётся, когда задача пришла из очереди со своим ID.
	TaskID       string
	PhishingType string
	Difficulty   string
	SeedInfo     string
}

// TreeBuilder строит дерево сценария.
type TreeBuilder interface {
	Build(ctx context.Context, req pipeline.RootRequest, progress pipeline.ProgressFunc) (*model.ScenarioTree, error)
}

// ImageRenderer генерирует картинки для выбранных узлов.
type ImageRenderer interface {
	Render(ctx context.Context, tree *model.ScenarioTree, selectNode func(*model.ScenarioNode) bool) pipeline.ImageReport
}

// ScenarioService операции над сценариями.
type ScenarioService interface {
	// StartGeneration ставит построение в фон и сразу возвращает задачу.
	StartGeneration(ctx context.Context, req GenerateRequest) (*model.GenerationTask, error)
	// Generate строит и сохраняет сценарий синхронно.
	Generate(ctx context.Context, req GenerateRequest, progress pipeline.ProgressFunc) (*model.ScenarioTree, error)
	Task(ctx context.Context, id string) (*model.GenerationTask, error)
	CancelTask(id string) error
	Get(ctx context.Context, id string) (*model.ScenarioTree, error)
	List(ctx context.Context) ([]model.Summary, error)
	PlayerView(ctx context.Context, id string) (*model.PlayerScenario, error)
	// RegenerateImages без nodeIDs обрабатывает узлы с промптом и без картинки.
	RegenerateImages(ctx context.Context, id string, nodeIDs []string) (*pipeline.ImageReport, error)
}

type scenarioServiceImpl struct {
	builder TreeBuilder
	images  ImageRenderer
	repo    repository.ScenarioRepository
	tasks   *taskmanager.Manager
	logger  *zap.Logger
}

var _ ScenarioService = (*scenarioServiceImpl)(nil)

// NewScenarioService images может быть nil, если картинки выключены.
func NewScenarioService(builder TreeBuilder, images ImageRenderer, repo repository.ScenarioRepository, tasks *taskmanager.Manager, logger *zap.Logger) ScenarioService {
	return &scenarioServiceImpl{
		builder: builder,
		images:  images,
		repo:    repo,
		tasks:   tasks,
		logger:  logger.Named("ScenarioService"),
	}
}

func (s *scenarioServiceImpl) rootRequest(req GenerateRequest) (pipeline.RootRequest, error) {
	phishingType := strings.TrimSpace(req.PhishingType)
	if phishingType == "" {
		return pipeline.RootRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, model.ErrEmptyPhishingType)
	}
	difficulty, err := model.ParseDifficulty(req.Difficulty)
	if err != nil {
		return pipeline.RootRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return pipeline.RootRequest{PhishingType: phishingType, Difficulty: difficulty, SeedInfo: strings.TrimSpace(req.SeedInfo)}, nil
}

func (s *scenarioServiceImpl) StartGeneration(ctx context.Context, req GenerateRequest) (*model.GenerationTask, error) {
	root, err := s.rootRequest(req)
	if err != nil {
		return nil, err
	}
	task := model.GenerationTask{
		ID:           req.TaskID,
		PhishingType: root.PhishingType,
		Difficulty:   root.Difficulty,
		SeedInfo:     root.SeedInfo,
	}

	return s.tasks.Submit(ctx, task, func(ctx context.Context, progress taskmanager.ProgressFunc) (string, error) {
		tree, err := s.buildAndSave(ctx, root, func(phase pipeline.Phase, percent int) {
			progress(string(phase), percent)
		})
		if err != nil {
			return "", err
		}
		return tree.ID, nil
	})
}

func (s *scenarioServiceImpl) Generate(ctx context.Context, req GenerateRequest, progress pipeline.ProgressFunc) (*model.ScenarioTree, error) {
	root, err := s.rootRequest(req)
	if err != nil {
		return nil, err
	}
	return s.buildAndSave(ctx, root, progress)
}

func (s *scenarioServiceImpl) buildAndSave(ctx context.Context, root pipeline.RootRequest, progress pipeline.ProgressFunc) (*model.ScenarioTree, error) {
	tree, err := s.builder.Build(ctx, root, progress)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, tree); err != nil {
		return nil, fmt.Errorf("failed to save scenario %s: %w", tree.ID, err)
	}
	s.logger.Info("Scenario generated and saved",
		zap.String("scenario_id", tree.ID),
		zap.String("phishing_type", tree.PhishingType),
		zap.Int("nodes", len(tree.Nodes)))
	return tree, nil
}

func (s *scenarioServiceImpl) Task(ctx context.Context, id string) (*model.GenerationTask, error) {
	return s.tasks.Get(ctx, id)
}

func (s *scenarioServiceImpl) CancelTask(id string) error {
	return s.tasks.Cancel(id)
}

func (s *scenarioServiceImpl) Get(ctx context.Context, id string) (*model.ScenarioTree, error) {
	return s.repo.Get(ctx, id)
}

func (s *scenarioServiceImpl) List(ctx context.Context) ([]model.Summary, error) {
	return s.repo.List(ctx)
}

func (s *scenarioServiceImpl) PlayerView(ctx context.Context, id string) (*model.PlayerScenario, error) {
	tree, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tree.PlayerView(), nil
}

func (s *scenarioServiceImpl) RegenerateImages(ctx context.Context, id string, nodeIDs []string) (*pipeline.ImageReport, error) {
	if s.images == nil {
		return nil, ErrImagesDisabled
	}
	tree, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	selectNode := pipeline.MissingImages
	if len(nodeIDs) > 0 {
		wanted := make(map[string]struct{}, len(nodeIDs))
		for _, nodeID := range nodeIDs {
			if tree.Node(nodeID) == nil {
				return nil, fmt.Errorf("%w: node %s not in scenario %s", ErrInvalidRequest, nodeID, id)
			}
			wanted[nodeID] = struct{}{}
		}
		selectNode = func(n *model.ScenarioNode) bool {
			_, ok := wanted[n.ID]
			return ok
		}
	}

	report := s.images.Render(ctx, tree, selectNode)
	if err := s.repo.Save(ctx, tree); err != nil {
		return nil, fmt.Errorf("failed to save scenario %s: %w", id, err)
	}
	s.logger.Info("Scenario images regenerated",
		zap.String("scenario_id", id),
		zap.Int("requested", report.Requested),
		zap.Int("generated", report.Generated))
	return &report, nil
}
