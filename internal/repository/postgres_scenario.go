package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/database"
	"github.com/chris40461/scam-or-safe/internal/model"
)

const (
	upsertScenarioQuery = `
        INSERT INTO scenarios (id, title, description, phishing_type, difficulty, tree, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (id) DO UPDATE SET
            title = EXCLUDED.title,
            description = EXCLUDED.description,
            phishing_type = EXCLUDED.phishing_type,
            difficulty = EXCLUDED.difficulty,
            tree = EXCLUDED.tree,
            updated_at = NOW()
    `
	getScenarioQuery   = `SELECT tree FROM scenarios WHERE id = $1`
	listScenariosQuery = `
        SELECT id, title, description, phishing_type, difficulty, created_at
        FROM scenarios
        ORDER BY created_at DESC
    `
)

var _ ScenarioRepository = (*pgScenarioRepository)(nil)

type pgScenarioRepository struct {
	db     database.DBTX
	logger *zap.Logger
}

// NewPgScenarioRepository хранит дерево в JSONB-колонке, краткие поля дублируются для списка.
func NewPgScenarioRepository(db database.DBTX, logger *zap.Logger) ScenarioRepository {
	return &pgScenarioRepository{db: db, logger: logger.Named("PgScenarioRepo")}
}

func (r *pgScenarioRepository) Save(ctx context.Context, tree *model.ScenarioTree) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario %s: %w", tree.ID, err)
	}
	logFields := []zap.Field{zap.String("scenario_id", tree.ID), zap.Int("nodes", len(tree.Nodes))}

	_, err = r.db.Exec(ctx, upsertScenarioQuery,
		tree.ID,
		tree.Title,
		tree.Description,
		tree.PhishingType,
		string(tree.Difficulty),
		raw,
		tree.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save scenario", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to save scenario %s: %w", tree.ID, err)
	}
	r.logger.Info("Scenario saved", logFields...)
	return nil
}

func (r *pgScenarioRepository) Get(ctx context.Context, id string) (*model.ScenarioTree, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, getScenarioQuery, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get scenario", zap.String("scenario_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get scenario %s: %w", id, err)
	}

	var tree model.ScenarioTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode scenario %s: %w", id, err)
	}
	return &tree, nil
}

func (r *pgScenarioRepository) List(ctx context.Context) ([]model.Summary, error) {
	summaries := make([]model.Summary, 0)
	if err := pgxscan.Select(ctx, r.db, &summaries, listScenariosQuery); err != nil {
		r.logger.Error("Failed to list scenarios", zap.Error(err))
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	return summaries, nil
}
