package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reportforge/reportforge/pkg/models"
)

// PlaceholderStore persists template placeholders and their cached
// analysis state.
type PlaceholderStore struct {
	db *sql.DB
}

// NewPlaceholderStore creates a PlaceholderStore.
func NewPlaceholderStore(db *sql.DB) *PlaceholderStore {
	return &PlaceholderStore{db: db}
}

const placeholderColumns = `id, template_id, name, description, semantic_type, top_n,
	generated_sql, sql_validated, agent_analyzed, confidence, agent_config,
	created_at, updated_at`

// Create inserts a placeholder for a template.
func (s *PlaceholderStore) Create(ctx context.Context, p *models.Placeholder) error {
	if p.TemplateID == "" {
		return NewValidationError("TemplateID", "required")
	}
	if p.Name == "" {
		return NewValidationError("Name", "required")
	}
	if p.SemanticType == "" {
		p.SemanticType = models.SemanticTypeScalarStat
	}
	if !p.SemanticType.IsValid() {
		return NewValidationError("SemanticType", "unknown value "+string(p.SemanticType))
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	cfg, err := json.Marshal(p.AgentConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal agent config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO template_placeholders
		 (id, template_id, name, description, semantic_type, top_n, generated_sql,
		  sql_validated, agent_analyzed, confidence, agent_config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.TemplateID, p.Name, p.Description, p.SemanticType, p.TopN,
		p.GeneratedSQL, p.SQLValidated, p.AgentAnalyzed, p.Confidence, cfg,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create placeholder: %w", err)
	}
	return nil
}

// ListByTemplate returns a template's placeholders in template-scan order
// (creation order matches the scanner's document order).
func (s *PlaceholderStore) ListByTemplate(ctx context.Context, templateID string) ([]*models.Placeholder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+placeholderColumns+` FROM template_placeholders
		 WHERE template_id = $1 ORDER BY created_at, id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list placeholders: %w", err)
	}
	defer rows.Close()

	var out []*models.Placeholder
	for rows.Next() {
		p, err := scanPlaceholder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get retrieves a placeholder by ID.
func (s *PlaceholderStore) Get(ctx context.Context, id string) (*models.Placeholder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+placeholderColumns+` FROM template_placeholders WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get placeholder: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanPlaceholder(rows)
}

// SaveAnalysis persists the outcome of a placeholder analysis. Called
// even on failure so failed SQL is cached and not re-generated every run.
//
// The store enforces the invariants:
//   - agent_analyzed requires non-empty generated_sql
//   - sql_validated requires a successful last test result
func (s *PlaceholderStore) SaveAnalysis(ctx context.Context, id string, u models.AnalysisUpdate) error {
	if u.AgentAnalyzed && u.GeneratedSQL == "" {
		return NewValidationError("GeneratedSQL", "required when agent_analyzed is set")
	}
	if u.SQLValidated && (u.AgentConfig.LastTestResult == nil || !u.AgentConfig.LastTestResult.Success) {
		return NewValidationError("SQLValidated", "requires a successful last test result")
	}

	cfg, err := json.Marshal(u.AgentConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal agent config: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE template_placeholders
		 SET generated_sql = $2, sql_validated = $3, agent_analyzed = $4,
		     confidence = $5, agent_config = $6, updated_at = now()
		 WHERE id = $1`,
		id, u.GeneratedSQL, u.SQLValidated, u.AgentAnalyzed, u.Confidence, cfg)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return requireRow(res)
}

func scanPlaceholder(rows *sql.Rows) (*models.Placeholder, error) {
	var p models.Placeholder
	var cfg []byte
	err := rows.Scan(&p.ID, &p.TemplateID, &p.Name, &p.Description, &p.SemanticType,
		&p.TopN, &p.GeneratedSQL, &p.SQLValidated, &p.AgentAnalyzed, &p.Confidence,
		&cfg, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan placeholder: %w", err)
	}
	if err := json.Unmarshal(cfg, &p.AgentConfig); err != nil {
		return nil, fmt.Errorf("failed to decode agent config: %w", err)
	}
	return &p, nil
}
