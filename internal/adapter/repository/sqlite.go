package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"

	"github.com/hive-corporation/vantage/internal/core/domain"
)

// SQLiteRepository stores everything in a single SQLite file. Timestamps are
// kept as UTC unix nanoseconds so ordering and range filters stay numeric.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database at the given path, configures WAL mode
// and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS templates (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	description             TEXT NOT NULL DEFAULT '',
	asset_types             TEXT NOT NULL,
	industries              TEXT NOT NULL DEFAULT '[]',
	criteria                TEXT NOT NULL,
	automation_level        TEXT NOT NULL,
	historical_success_rate REAL NOT NULL DEFAULT 0,
	usage_count             INTEGER NOT NULL DEFAULT 0,
	last_used_at            INTEGER,
	passing_score           REAL NOT NULL DEFAULT 0,
	created_at              INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_assessments (
	id                 TEXT PRIMARY KEY,
	entity_id          TEXT NOT NULL,
	entity_type        TEXT NOT NULL,
	module             TEXT NOT NULL DEFAULT '',
	overall_risk_score REAL NOT NULL,
	risk_grade         TEXT NOT NULL,
	factors            TEXT NOT NULL,
	trend              TEXT NOT NULL,
	recommendations    TEXT NOT NULL,
	alert_level        TEXT NOT NULL,
	assessed_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS market_indicators (
	sector         TEXT NOT NULL,
	region         TEXT NOT NULL,
	metric         TEXT NOT NULL,
	value          REAL NOT NULL,
	previous_value REAL NOT NULL,
	as_of          INTEGER NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (sector, region, metric, as_of)
);

CREATE TABLE IF NOT EXISTS workspaces (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS workspace_integrations (
	workspace_id TEXT NOT NULL REFERENCES workspaces(id),
	provider     TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (workspace_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_risk_assessments_entity ON risk_assessments(entity_id, assessed_at);
CREATE INDEX IF NOT EXISTS idx_risk_assessments_assessed_at ON risk_assessments(assessed_at);
`

func (s *SQLiteRepository) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func (s *SQLiteRepository) CreateTemplate(ctx context.Context, t domain.Template) error {
	assetTypes, err := encodeJSON(nonNil(t.AssetTypes))
	if err != nil {
		return eris.Wrap(err, "sqlite: encode asset types")
	}
	industries, err := encodeJSON(nonNil(t.Industries))
	if err != nil {
		return eris.Wrap(err, "sqlite: encode industries")
	}
	criteria, err := encodeJSON(t.Criteria)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode criteria")
	}
	var lastUsed sql.NullInt64
	if t.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toNanos(*t.LastUsedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, description, asset_types, industries, criteria, automation_level,
			historical_success_rate, usage_count, last_used_at, passing_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, string(assetTypes), string(industries), string(criteria),
		string(t.AutomationLevel), t.HistoricalSuccessRate, t.UsageCount, lastUsed, t.PassingScore,
		toNanos(t.CreatedAt),
	)
	if isConstraintError(err) {
		return eris.Wrapf(domain.ErrConflict, "sqlite: template %s", t.ID)
	}
	return eris.Wrapf(err, "sqlite: insert template %s", t.ID)
}

// sqliteConstraint is the primary result code shared by all constraint failures.
const sqliteConstraint = 19

func isConstraintError(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqliteConstraint
}

const sqliteTemplateColumns = `id, name, description, asset_types, industries, criteria, automation_level,
	historical_success_rate, usage_count, last_used_at, passing_score, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTemplate(row rowScanner) (*domain.Template, error) {
	var t domain.Template
	var assetTypes, industries, criteria, level string
	var lastUsed sql.NullInt64
	var createdAt int64
	err := row.Scan(&t.ID, &t.Name, &t.Description, &assetTypes, &industries, &criteria, &level,
		&t.HistoricalSuccessRate, &t.UsageCount, &lastUsed, &t.PassingScore, &createdAt)
	if err != nil {
		return nil, err
	}
	t.AutomationLevel = domain.AutomationLevel(level)
	t.CreatedAt = fromNanos(createdAt)
	if lastUsed.Valid {
		used := fromNanos(lastUsed.Int64)
		t.LastUsedAt = &used
	}
	if err := decodeJSON([]byte(assetTypes), &t.AssetTypes); err != nil {
		return nil, eris.Wrap(err, "decode asset types")
	}
	if err := decodeJSON([]byte(industries), &t.Industries); err != nil {
		return nil, eris.Wrap(err, "decode industries")
	}
	if err := decodeJSON([]byte(criteria), &t.Criteria); err != nil {
		return nil, eris.Wrap(err, "decode criteria")
	}
	return &t, nil
}

func (s *SQLiteRepository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteTemplateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanSQLiteTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get template %s", id)
	}
	return t, nil
}

func (s *SQLiteRepository) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteTemplateColumns+` FROM templates ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		t, err := scanSQLiteTemplate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan template")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate templates")
}

func (s *SQLiteRepository) RecordTemplateUsage(ctx context.Context, id string, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		toNanos(usedAt), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record usage of template %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteRepository) SaveAssessment(ctx context.Context, a domain.RiskAssessment) error {
	factors, err := encodeJSON(a.Factors)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode factors")
	}
	recs, err := encodeJSON(a.Recommendations)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode recommendations")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO risk_assessments (id, entity_id, entity_type, module, overall_risk_score, risk_grade,
			factors, trend, recommendations, alert_level, assessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EntityID, string(a.EntityType), a.Module, a.OverallRiskScore, a.RiskGrade,
		string(factors), string(a.Trend), string(recs), string(a.AlertLevel), toNanos(a.AssessedAt),
	)
	return eris.Wrapf(err, "sqlite: insert assessment %s", a.ID)
}

func (s *SQLiteRepository) ScoreHistory(ctx context.Context, entityID string, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT overall_risk_score FROM risk_assessments WHERE entity_id = ? ORDER BY assessed_at DESC LIMIT ?`,
		entityID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: score history for %s", entityID)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		scores = append(scores, v)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: iterate scores")
}

const sqliteAssessmentColumns = `id, entity_id, entity_type, module, overall_risk_score, risk_grade,
	factors, trend, recommendations, alert_level, assessed_at`

func (s *SQLiteRepository) ListAssessments(ctx context.Context, entityID string, limit int) ([]domain.RiskAssessment, error) {
	return s.queryAssessments(ctx,
		`SELECT `+sqliteAssessmentColumns+` FROM risk_assessments WHERE entity_id = ? ORDER BY assessed_at DESC LIMIT ?`,
		entityID, limit,
	)
}

func (s *SQLiteRepository) FindAssessmentsSince(ctx context.Context, since time.Time, limit int) ([]domain.RiskAssessment, error) {
	return s.queryAssessments(ctx,
		`SELECT `+sqliteAssessmentColumns+` FROM risk_assessments WHERE assessed_at >= ? ORDER BY assessed_at DESC LIMIT ?`,
		toNanos(since), limit,
	)
}

func (s *SQLiteRepository) queryAssessments(ctx context.Context, query string, args ...any) ([]domain.RiskAssessment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query assessments")
	}
	defer rows.Close()

	var out []domain.RiskAssessment
	for rows.Next() {
		var a domain.RiskAssessment
		var entityType, trend, level, factors, recs string
		var assessedAt int64
		err := rows.Scan(&a.ID, &a.EntityID, &entityType, &a.Module, &a.OverallRiskScore, &a.RiskGrade,
			&factors, &trend, &recs, &level, &assessedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		a.EntityType = domain.EntityType(entityType)
		a.Trend = domain.Trend(trend)
		a.AlertLevel = domain.AlertLevel(level)
		a.AssessedAt = fromNanos(assessedAt)
		if err := decodeJSON([]byte(factors), &a.Factors); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode factors")
		}
		if err := decodeJSON([]byte(recs), &a.Recommendations); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode recommendations")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assessments")
}

// SaveIndicators upserts all indicators in one transaction.
func (s *SQLiteRepository) SaveIndicators(ctx context.Context, indicators []domain.MarketIndicator) error {
	if len(indicators) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin indicator tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO market_indicators (sector, region, metric, value, previous_value, as_of, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sector, region, metric, as_of)
		DO UPDATE SET value = excluded.value, previous_value = excluded.previous_value, source = excluded.source`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare indicator upsert")
	}
	defer stmt.Close()

	for _, ind := range indicators {
		if _, err := stmt.ExecContext(ctx, ind.Sector, ind.Region, ind.Metric, ind.Value, ind.PreviousValue,
			toNanos(ind.AsOf), ind.Source); err != nil {
			return eris.Wrapf(err, "sqlite: upsert indicator %s/%s", ind.Sector, ind.Metric)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit indicators")
}

func (s *SQLiteRepository) LatestIndicators(ctx context.Context, since time.Time) ([]domain.MarketIndicator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sector, region, metric, value, previous_value, as_of, source
		FROM market_indicators WHERE as_of >= ? ORDER BY as_of DESC`,
		toNanos(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query indicators")
	}
	defer rows.Close()

	var out []domain.MarketIndicator
	for rows.Next() {
		var ind domain.MarketIndicator
		var asOf int64
		if err := rows.Scan(&ind.Sector, &ind.Region, &ind.Metric, &ind.Value, &ind.PreviousValue, &asOf, &ind.Source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan indicator")
		}
		ind.AsOf = fromNanos(asOf)
		out = append(out, ind)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate indicators")
}

func (s *SQLiteRepository) CreateWorkspace(ctx context.Context, w domain.Workspace) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		w.ID, w.Name, toNanos(w.CreatedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert workspace %s", w.ID)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteRepository) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	var w domain.Workspace
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM workspaces WHERE id = ?`, id).
		Scan(&w.ID, &w.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get workspace %s", id)
	}
	w.CreatedAt = fromNanos(createdAt)
	return &w, nil
}

func (s *SQLiteRepository) AddIntegration(ctx context.Context, in domain.Integration) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_integrations (workspace_id, provider, status, created_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (workspace_id, provider) DO NOTHING`,
		in.WorkspaceID, in.Provider, string(in.Status), toNanos(in.CreatedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert %s integration", in.Provider)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteRepository) ListIntegrations(ctx context.Context, workspaceID string) ([]domain.Integration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workspace_id, provider, status, created_at FROM workspace_integrations
		WHERE workspace_id = ? ORDER BY provider`,
		workspaceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list integrations for %s", workspaceID)
	}
	defer rows.Close()

	var out []domain.Integration
	for rows.Next() {
		var in domain.Integration
		var status string
		var createdAt int64
		if err := rows.Scan(&in.WorkspaceID, &in.Provider, &status, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan integration")
		}
		in.Status = domain.IntegrationStatus(status)
		in.CreatedAt = fromNanos(createdAt)
		out = append(out, in)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate integrations")
}
