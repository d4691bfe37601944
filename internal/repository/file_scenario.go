package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/model"
)

var _ ScenarioRepository = (*fileScenarioRepository)(nil)

// fileScenarioRepository один JSON-файл на сценарий: <dir>/<id>.json.
type fileScenarioRepository struct {
	dir    string
	logger *zap.Logger
}

// NewFileScenarioRepository создаёт каталог при необходимости.
func NewFileScenarioRepository(dir string, logger *zap.Logger) (ScenarioRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scenario dir %s: %w", dir, err)
	}
	return &fileScenarioRepository{dir: dir, logger: logger.Named("FileScenarioRepo")}, nil
}

func (r *fileScenarioRepository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *fileScenarioRepository) Save(_ context.Context, tree *model.ScenarioTree) error {
	if err := checkID(tree.ID); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scenario %s: %w", tree.ID, err)
	}

	// запись через временный файл, чтобы читатели не видели половину документа
	tmp, err := os.CreateTemp(r.dir, tree.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write scenario %s: %w", tree.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path(tree.ID)); err != nil {
		return fmt.Errorf("failed to store scenario %s: %w", tree.ID, err)
	}

	r.logger.Info("Scenario saved", zap.String("scenario_id", tree.ID), zap.Int("nodes", len(tree.Nodes)), zap.Int("bytes", len(raw)))
	return nil
}

func (r *fileScenarioRepository) Get(_ context.Context, id string) (*model.ScenarioTree, error) {
	if err := checkID(id); err != nil {
		return nil, model.ErrNotFound
	}
	raw, err := os.ReadFile(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", id, err)
	}
	var tree model.ScenarioTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode scenario %s: %w", id, err)
	}
	return &tree, nil
}

func (r *fileScenarioRepository) List(ctx context.Context) ([]model.Summary, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario dir: %w", err)
	}

	summaries := make([]model.Summary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		tree, err := r.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			r.logger.Warn("Skipping unreadable scenario file", zap.String("file", name), zap.Error(err))
			continue
		}
		summaries = append(summaries, tree.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}
