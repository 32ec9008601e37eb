package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// Pool is the subset of pgxpool.Pool the repository uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

type PostgresRepository struct {
	db Pool
}

func NewPostgresRepository(db Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgres connects a pool and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	repo := NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS templates (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	description             TEXT NOT NULL DEFAULT '',
	asset_types             TEXT[] NOT NULL,
	industries              TEXT[] NOT NULL DEFAULT '{}',
	criteria                JSONB NOT NULL,
	automation_level        TEXT NOT NULL,
	historical_success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	usage_count             INTEGER NOT NULL DEFAULT 0,
	last_used_at            TIMESTAMPTZ,
	passing_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_assessments (
	id                 TEXT PRIMARY KEY,
	entity_id          TEXT NOT NULL,
	entity_type        TEXT NOT NULL,
	module             TEXT NOT NULL DEFAULT '',
	overall_risk_score DOUBLE PRECISION NOT NULL,
	risk_grade         TEXT NOT NULL,
	factors            JSONB NOT NULL,
	trend              TEXT NOT NULL,
	recommendations    JSONB NOT NULL,
	alert_level        TEXT NOT NULL,
	assessed_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_assessments_entity ON risk_assessments (entity_id, assessed_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_assessments_assessed_at ON risk_assessments (assessed_at DESC);

CREATE TABLE IF NOT EXISTS market_indicators (
	sector         TEXT NOT NULL,
	region         TEXT NOT NULL,
	metric         TEXT NOT NULL,
	value          DOUBLE PRECISION NOT NULL,
	previous_value DOUBLE PRECISION NOT NULL,
	as_of          TIMESTAMPTZ NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (sector, region, metric, as_of)
);

CREATE TABLE IF NOT EXISTS workspaces (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workspace_integrations (
	workspace_id TEXT NOT NULL REFERENCES workspaces (id),
	provider     TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (workspace_id, provider)
);
`

// Migrate creates tables and indexes if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}

func (r *PostgresRepository) CreateTemplate(ctx context.Context, t domain.Template) error {
	criteria, err := encodeJSON(t.Criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: encode criteria")
	}

	query := `
		INSERT INTO templates (id, name, description, asset_types, industries, criteria, automation_level,
			historical_success_rate, usage_count, last_used_at, passing_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.Exec(ctx, query,
		t.ID,
		t.Name,
		t.Description,
		nonNil(t.AssetTypes),
		nonNil(t.Industries),
		criteria,
		string(t.AutomationLevel),
		t.HistoricalSuccessRate,
		t.UsageCount,
		t.LastUsedAt,
		t.PassingScore,
		t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(domain.ErrConflict, "postgres: template %s", t.ID)
		}
		return eris.Wrapf(err, "postgres: insert template %s", t.ID)
	}
	return nil
}

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const templateColumns = `id, name, description, asset_types, industries, criteria, automation_level,
	historical_success_rate, usage_count, last_used_at, passing_score, created_at`

func (r *PostgresRepository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`

	t, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get template %s", id)
	}
	return t, nil
}

func (r *PostgresRepository) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates ORDER BY name, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan template")
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate templates")
	}
	return templates, nil
}

func (r *PostgresRepository) RecordTemplateUsage(ctx context.Context, id string, usedAt time.Time) error {
	query := `UPDATE templates SET usage_count = usage_count + 1, last_used_at = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, usedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: record usage of template %s", id)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	var criteria []byte
	var level string
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.AssetTypes,
		&t.Industries,
		&criteria,
		&level,
		&t.HistoricalSuccessRate,
		&t.UsageCount,
		&t.LastUsedAt,
		&t.PassingScore,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AutomationLevel = domain.AutomationLevel(level)
	if err := decodeJSON(criteria, &t.Criteria); err != nil {
		return nil, eris.Wrap(err, "decode criteria")
	}
	return &t, nil
}

func (r *PostgresRepository) SaveAssessment(ctx context.Context, a domain.RiskAssessment) error {
	factors, err := encodeJSON(a.Factors)
	if err != nil {
		return eris.Wrap(err, "postgres: encode factors")
	}
	recs, err := encodeJSON(a.Recommendations)
	if err != nil {
		return eris.Wrap(err, "postgres: encode recommendations")
	}

	query := `
		INSERT INTO risk_assessments (id, entity_id, entity_type, module, overall_risk_score, risk_grade,
			factors, trend, recommendations, alert_level, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.EntityID,
		string(a.EntityType),
		a.Module,
		a.OverallRiskScore,
		a.RiskGrade,
		factors,
		string(a.Trend),
		recs,
		string(a.AlertLevel),
		a.AssessedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert assessment %s", a.ID)
	}
	return nil
}

func (r *PostgresRepository) ScoreHistory(ctx context.Context, entityID string, limit int) ([]float64, error) {
	query := `
		SELECT overall_risk_score
		FROM risk_assessments
		WHERE entity_id = $1
		ORDER BY assessed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, entityID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: score history for %s", entityID)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate scores")
	}
	return scores, nil
}

const assessmentColumns = `id, entity_id, entity_type, module, overall_risk_score, risk_grade,
	factors, trend, recommendations, alert_level, assessed_at`

func (r *PostgresRepository) ListAssessments(ctx context.Context, entityID string, limit int) ([]domain.RiskAssessment, error) {
	query := `SELECT ` + assessmentColumns + `
		FROM risk_assessments
		WHERE entity_id = $1
		ORDER BY assessed_at DESC
		LIMIT $2`

	return r.queryAssessments(ctx, query, entityID, limit)
}

func (r *PostgresRepository) FindAssessmentsSince(ctx context.Context, since time.Time, limit int) ([]domain.RiskAssessment, error) {
	query := `SELECT ` + assessmentColumns + `
		FROM risk_assessments
		WHERE assessed_at >= $1
		ORDER BY assessed_at DESC
		LIMIT $2`

	return r.queryAssessments(ctx, query, since, limit)
}

func (r *PostgresRepository) queryAssessments(ctx context.Context, query string, args ...any) ([]domain.RiskAssessment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query assessments")
	}
	defer rows.Close()

	var out []domain.RiskAssessment
	for rows.Next() {
		var a domain.RiskAssessment
		var entityType, trend, level string
		var factors, recs []byte
		err := rows.Scan(
			&a.ID,
			&a.EntityID,
			&entityType,
			&a.Module,
			&a.OverallRiskScore,
			&a.RiskGrade,
			&factors,
			&trend,
			&recs,
			&level,
			&a.AssessedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		a.EntityType = domain.EntityType(entityType)
		a.Trend = domain.Trend(trend)
		a.AlertLevel = domain.AlertLevel(level)
		if err := decodeJSON(factors, &a.Factors); err != nil {
			return nil, eris.Wrap(err, "postgres: decode factors")
		}
		if err := decodeJSON(recs, &a.Recommendations); err != nil {
			return nil, eris.Wrap(err, "postgres: decode recommendations")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate assessments")
	}
	return out, nil
}

// SaveIndicators upserts a batch of indicators in one round trip.
func (r *PostgresRepository) SaveIndicators(ctx context.Context, indicators []domain.MarketIndicator) error {
	if len(indicators) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO market_indicators (sector, region, metric, value, previous_value, as_of, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sector, region, metric, as_of)
		DO UPDATE SET value = EXCLUDED.value, previous_value = EXCLUDED.previous_value, source = EXCLUDED.source
	`

	for _, ind := range indicators {
		batch.Queue(query,
			ind.Sector,
			ind.Region,
			ind.Metric,
			ind.Value,
			ind.PreviousValue,
			ind.AsOf,
			ind.Source,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for range indicators {
		if _, err := br.Exec(); err != nil {
			return eris.Wrap(err, "postgres: execute indicator batch")
		}
	}
	return nil
}

func (r *PostgresRepository) LatestIndicators(ctx context.Context, since time.Time) ([]domain.MarketIndicator, error) {
	query := `
		SELECT sector, region, metric, value, previous_value, as_of, source
		FROM market_indicators
		WHERE as_of >= $1
		ORDER BY as_of DESC
	`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query indicators since %v", since)
	}
	defer rows.Close()

	var out []domain.MarketIndicator
	for rows.Next() {
		var ind domain.MarketIndicator
		err := rows.Scan(
			&ind.Sector,
			&ind.Region,
			&ind.Metric,
			&ind.Value,
			&ind.PreviousValue,
			&ind.AsOf,
			&ind.Source,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan indicator")
		}
		out = append(out, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate indicators")
	}
	return out, nil
}

func (r *PostgresRepository) CreateWorkspace(ctx context.Context, w domain.Workspace) (bool, error) {
	query := `
		INSERT INTO workspaces (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, w.ID, w.Name, w.CreatedAt)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert workspace %s", w.ID)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	query := `SELECT id, name, created_at FROM workspaces WHERE id = $1`

	var w domain.Workspace
	if err := r.db.QueryRow(ctx, query, id).Scan(&w.ID, &w.Name, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get workspace %s", id)
	}
	return &w, nil
}

func (r *PostgresRepository) AddIntegration(ctx context.Context, in domain.Integration) (bool, error) {
	query := `
		INSERT INTO workspace_integrations (workspace_id, provider, status, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, provider) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, in.WorkspaceID, in.Provider, string(in.Status), in.CreatedAt)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert %s integration", in.Provider)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListIntegrations(ctx context.Context, workspaceID string) ([]domain.Integration, error) {
	query := `
		SELECT workspace_id, provider, status, created_at
		FROM workspace_integrations
		WHERE workspace_id = $1
		ORDER BY provider
	`

	rows, err := r.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list integrations for %s", workspaceID)
	}
	defer rows.Close()

	var out []domain.Integration
	for rows.Next() {
		var in domain.Integration
		var status string
		if err := rows.Scan(&in.WorkspaceID, &in.Provider, &status, &in.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan integration")
		}
		in.Status = domain.IntegrationStatus(status)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate integrations")
	}
	return out, nil
}
