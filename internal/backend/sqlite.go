package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgate/internal/model"
)

// SQLite implements Backend on a local database file. It mirrors the
// hosted schema closely enough for development and tests, including the
// all-or-nothing unlock.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time keeps unlock transactions serialised.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	company            TEXT NOT NULL,
	website            TEXT,
	domain             TEXT,
	logo_url           TEXT,
	email              TEXT,
	phone              TEXT,
	stage              TEXT,
	arr_estimate       REAL,
	employees          INTEGER,
	tech_stack         TEXT NOT NULL DEFAULT '[]',
	intelligence_score INTEGER NOT NULL DEFAULT 0 CHECK (intelligence_score BETWEEN 0 AND 100),
	workflow           TEXT NOT NULL DEFAULT 'new',
	is_high_priority   INTEGER NOT NULL DEFAULT 0,
	is_archived        INTEGER NOT NULL DEFAULT 0,
	meta               TEXT NOT NULL DEFAULT '{}',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(intelligence_score DESC);

CREATE TABLE IF NOT EXISTS lead_access (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	granted_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (user_id, lead_id)
);

CREATE INDEX IF NOT EXISTS idx_lead_access_user ON lead_access(user_id);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	amount     INTEGER NOT NULL,
	reason     TEXT,
	ref_type   TEXT,
	ref_id     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_credit_ledger_user ON credit_ledger(user_id);

CREATE TABLE IF NOT EXISTS feature_flags (
	key         TEXT PRIMARY KEY,
	enabled     INTEGER NOT NULL DEFAULT 0,
	description TEXT,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE VIEW IF NOT EXISTS dashboard_metrics AS
SELECT COUNT(*) AS total_companies, COALESCE(AVG(intelligence_score), 0.0) AS avg_score
FROM leads WHERE is_archived = 0;

CREATE VIEW IF NOT EXISTS stage_breakdown AS
SELECT COALESCE(NULLIF(stage, ''), 'unassigned') AS stage, COUNT(*) AS company_count
FROM leads WHERE is_archived = 0
GROUP BY 1;
`

func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ListLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company, COALESCE(website, ''), COALESCE(domain, ''), COALESCE(logo_url, ''),
	COALESCE(email, ''), COALESCE(phone, ''), COALESCE(stage, ''), COALESCE(arr_estimate, 0),
	COALESCE(employees, 0), tech_stack, intelligence_score, workflow, is_high_priority, is_archived,
	meta, created_at, updated_at
FROM leads ORDER BY intelligence_score DESC, id LIMIT ?`,
		limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var workflow, techJSON, metaJSON string
	if err := row.Scan(
		&l.ID, &l.Company, &l.Website, &l.Domain, &l.LogoURL,
		&l.Email, &l.Phone, &l.Stage, &l.ARREstimate,
		&l.Employees, &techJSON, &l.IntelligenceScore, &workflow, &l.IsHighPriority, &l.IsArchived,
		&metaJSON, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}
	l.Workflow = model.Workflow(workflow)
	if err := json.Unmarshal([]byte(techJSON), &l.TechStack); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal tech stack for lead %s", l.ID)
	}
	if err := json.Unmarshal([]byte(metaJSON), &l.Meta); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal meta for lead %s", l.ID)
	}
	l.Normalize()
	return &l, nil
}

func (s *SQLite) GetDashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error) {
	var m model.DashboardMetrics
	err := s.db.QueryRowContext(ctx, `SELECT total_companies, avg_score FROM dashboard_metrics`).
		Scan(&m.TotalCompanies, &m.AvgScore)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dashboard metrics")
	}
	return &m, nil
}

func (s *SQLite) GetStageBreakdown(ctx context.Context) ([]model.StageCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, company_count FROM stage_breakdown ORDER BY company_count DESC, stage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stage breakdown")
	}
	defer rows.Close()

	var stages []model.StageCount
	for rows.Next() {
		var sc model.StageCount
		if err := rows.Scan(&sc.Stage, &sc.CompanyCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		stages = append(stages, sc)
	}
	return stages, eris.Wrap(rows.Err(), "sqlite: iterate stages")
}

func (s *SQLite) GetFeatureFlags(ctx context.Context) (model.FeatureFlags, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, enabled FROM feature_flags`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: feature flags")
	}
	defer rows.Close()

	flags := model.FeatureFlags{}
	for rows.Next() {
		var key string
		var enabled bool
		if err := rows.Scan(&key, &enabled); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan flag")
		}
		flags[key] = enabled
	}
	return flags, eris.Wrap(rows.Err(), "sqlite: iterate flags")
}

func (s *SQLite) GetEntitledLeadIDs(ctx context.Context, userID string) (model.IDSet, error) {
	return queryIDSet(ctx, s.db, userID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryIDSet(ctx context.Context, q queryer, userID string) (model.IDSet, error) {
	rows, err := q.QueryContext(ctx, `SELECT lead_id FROM lead_access WHERE user_id = ?`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: entitled leads for %s", userID)
	}
	defer rows.Close()

	ids := model.IDSet{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead access")
		}
		ids.Add(id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate lead access")
}

func (s *SQLite) GetUserCredits(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_ledger WHERE user_id = ?`, userID,
	).Scan(&total)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: credits for %s", userID)
	}
	return total, nil
}

// UnlockLeads applies the same rules as unlock_leads_secure inside one
// transaction: unknown ids or an insufficient balance reject the whole
// request, already-held leads are skipped free of charge.
func (s *SQLite) UnlockLeads(ctx context.Context, userID string, leadIDs []string) error {
	ids := dedupe(leadIDs)
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: unlock: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var known int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM leads WHERE id IN (%s)`, placeholders), args...,
	).Scan(&known)
	if err != nil {
		return eris.Wrap(err, "sqlite: unlock: check leads")
	}
	if known != len(ids) {
		return &RejectedError{Reason: fmt.Sprintf("Unknown properties in request: %d", len(ids)-known)}
	}

	held, err := queryIDSet(ctx, tx, userID)
	if err != nil {
		return err
	}
	var fresh []string
	for _, id := range ids {
		if !held.Has(id) {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	var balance int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_ledger WHERE user_id = ?`, userID,
	).Scan(&balance)
	if err != nil {
		return eris.Wrap(err, "sqlite: unlock: read balance")
	}
	if balance < len(fresh) {
		return &RejectedError{Reason: fmt.Sprintf("Insufficient credits. Need %d, have %d", len(fresh), balance)}
	}

	now := time.Now().UTC()
	for _, id := range fresh {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lead_access (id, user_id, lead_id, granted_at) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), userID, id, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: unlock: grant %s", id)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_ledger (id, user_id, amount, reason, ref_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), userID, -len(fresh), "unlock", "lead_access", now,
	); err != nil {
		return eris.Wrap(err, "sqlite: unlock: debit ledger")
	}

	return eris.Wrap(tx.Commit(), "sqlite: unlock: commit")
}

func (s *SQLite) UpsertLeads(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert leads: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range leads {
		l := leads[i]
		l.Normalize()
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.TechStack == nil {
			l.TechStack = []string{}
		}
		techJSON, err := json.Marshal(l.TechStack)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal tech stack")
		}
		metaJSON, err := json.Marshal(l.Meta)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal meta for lead %s", l.ID)
		}
		created := l.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO leads (id, company, website, domain, logo_url, email, phone, stage,
	arr_estimate, employees, tech_stack, intelligence_score, workflow, is_high_priority, is_archived, meta,
	created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	company = excluded.company, website = excluded.website, domain = excluded.domain,
	logo_url = excluded.logo_url, email = excluded.email, phone = excluded.phone, stage = excluded.stage,
	arr_estimate = excluded.arr_estimate, employees = excluded.employees, tech_stack = excluded.tech_stack,
	intelligence_score = excluded.intelligence_score, workflow = excluded.workflow,
	is_high_priority = excluded.is_high_priority, is_archived = excluded.is_archived,
	meta = excluded.meta, updated_at = excluded.updated_at`,
			l.ID, l.Company, l.Website, l.Domain, l.LogoURL, l.Email, l.Phone, l.Stage,
			l.ARREstimate, l.Employees, string(techJSON), l.IntelligenceScore, string(l.Workflow),
			l.IsHighPriority, l.IsArchived, string(metaJSON), created, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert lead %s", l.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert leads: commit")
	}
	return len(leads), nil
}

func (s *SQLite) GrantCredits(ctx context.Context, userID string, amount int, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_ledger (id, user_id, amount, reason, ref_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), userID, amount, reason, "grant", time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: grant credits to %s", userID)
}

func (s *SQLite) SetFeatureFlag(ctx context.Context, key string, enabled bool, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_flags (key, enabled, description, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET enabled = excluded.enabled, description = excluded.description, updated_at = excluded.updated_at`,
		key, enabled, description, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set flag %s", key)
}
