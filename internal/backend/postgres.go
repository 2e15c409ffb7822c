package backend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgate/internal/db"
	"github.com/sells-group/leadgate/internal/model"
)

// pgRaiseException is the SQLSTATE raised by unlock_leads_secure when it
// refuses a request.
const pgRaiseException = "P0001"

// Postgres implements Backend against the hosted Postgres database.
type Postgres struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlListLeads = `SELECT id, company, COALESCE(website, ''), COALESCE(domain, ''), COALESCE(logo_url, ''),
	COALESCE(email, ''), COALESCE(phone, ''), COALESCE(stage, ''), COALESCE(arr_estimate, 0),
	COALESCE(employees, 0), COALESCE(tech_stack, '{}'), intelligence_score, workflow,
	is_high_priority, is_archived, meta, created_at, updated_at
FROM leads ORDER BY intelligence_score DESC, id LIMIT $1`
	sqlDashboardMetrics = `SELECT total_companies, avg_score FROM dashboard_metrics`
	sqlStageBreakdown   = `SELECT stage, company_count FROM stage_breakdown ORDER BY company_count DESC, stage`
	sqlFeatureFlags     = `SELECT key, enabled FROM feature_flags`
	sqlEntitledLeadIDs  = `SELECT lead_id FROM lead_access WHERE user_id = $1`
	sqlUserCredits      = `SELECT COALESCE(SUM(amount), 0) FROM credit_ledger WHERE user_id = $1`
	sqlUnlockLeads      = `SELECT unlock_leads_secure($1, $2)`
)

// preparedStatements are prepared on each new connection; they cover every
// read made during a dashboard load.
var preparedStatements = map[string]string{
	"list_leads":        sqlListLeads,
	"dashboard_metrics": sqlDashboardMetrics,
	"stage_breakdown":   sqlStageBreakdown,
	"feature_flags":     sqlFeatureFlags,
	"entitled_lead_ids": sqlEntitledLeadIDs,
	"user_credits":      sqlUserCredits,
}

// NewPostgres connects a pool to connString and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tolerate a fresh database that has not been migrated yet.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Postgres{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifetime.
func NewPostgresWithPool(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company            TEXT NOT NULL,
	website            TEXT,
	domain             TEXT,
	logo_url           TEXT,
	email              TEXT,
	phone              TEXT,
	stage              TEXT,
	arr_estimate       DOUBLE PRECISION,
	employees          INTEGER,
	tech_stack         TEXT[],
	intelligence_score INTEGER NOT NULL DEFAULT 0 CHECK (intelligence_score BETWEEN 0 AND 100),
	workflow           TEXT NOT NULL DEFAULT 'new',
	is_high_priority   BOOLEAN NOT NULL DEFAULT false,
	is_archived        BOOLEAN NOT NULL DEFAULT false,
	meta               JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(intelligence_score DESC);

CREATE TABLE IF NOT EXISTS lead_access (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id    TEXT NOT NULL,
	lead_id    TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, lead_id)
);

CREATE INDEX IF NOT EXISTS idx_lead_access_user ON lead_access(user_id);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id    TEXT NOT NULL,
	amount     INTEGER NOT NULL,
	reason     TEXT,
	ref_type   TEXT,
	ref_id     TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_credit_ledger_user ON credit_ledger(user_id);

CREATE TABLE IF NOT EXISTS feature_flags (
	key         TEXT PRIMARY KEY,
	enabled     BOOLEAN NOT NULL DEFAULT false,
	description TEXT,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE VIEW dashboard_metrics AS
SELECT COUNT(*)::int AS total_companies,
       COALESCE(AVG(intelligence_score), 0)::float8 AS avg_score
FROM leads WHERE NOT is_archived;

CREATE OR REPLACE VIEW stage_breakdown AS
SELECT COALESCE(NULLIF(stage, ''), 'unassigned') AS stage, COUNT(*)::int AS company_count
FROM leads WHERE NOT is_archived
GROUP BY 1;

CREATE OR REPLACE FUNCTION unlock_leads_secure(p_user_id TEXT, p_lead_ids TEXT[])
RETURNS INTEGER AS $$
DECLARE
	v_new     TEXT[];
	v_missing INTEGER;
	v_balance INTEGER;
	v_cost    INTEGER;
BEGIN
	PERFORM pg_advisory_xact_lock(hashtext(p_user_id));

	SELECT COUNT(*) INTO v_missing
	FROM unnest(p_lead_ids) AS t(id)
	WHERE NOT EXISTS (SELECT 1 FROM leads l WHERE l.id = t.id);
	IF v_missing > 0 THEN
		RAISE EXCEPTION 'Unknown properties in request: %', v_missing;
	END IF;

	SELECT array_agg(DISTINCT t.id) INTO v_new
	FROM unnest(p_lead_ids) AS t(id)
	WHERE NOT EXISTS (
		SELECT 1 FROM lead_access a WHERE a.user_id = p_user_id AND a.lead_id = t.id
	);
	IF v_new IS NULL THEN
		RETURN 0;
	END IF;

	v_cost := array_length(v_new, 1);
	SELECT COALESCE(SUM(amount), 0) INTO v_balance FROM credit_ledger WHERE user_id = p_user_id;
	IF v_balance < v_cost THEN
		RAISE EXCEPTION 'Insufficient credits. Need %, have %', v_cost, v_balance;
	END IF;

	INSERT INTO lead_access (user_id, lead_id)
	SELECT p_user_id, unnest(v_new);

	INSERT INTO credit_ledger (user_id, amount, reason, ref_type)
	VALUES (p_user_id, -v_cost, 'unlock', 'lead_access');

	RETURN v_cost;
END;
$$ LANGUAGE plpgsql;
`

func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (p *Postgres) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

func (p *Postgres) ListLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	rows, err := p.pool.Query(ctx, sqlListLeads, limitOrDefault(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var workflow string
		var metaJSON []byte
		if err := rows.Scan(
			&l.ID, &l.Company, &l.Website, &l.Domain, &l.LogoURL,
			&l.Email, &l.Phone, &l.Stage, &l.ARREstimate,
			&l.Employees, &l.TechStack, &l.IntelligenceScore, &workflow,
			&l.IsHighPriority, &l.IsArchived, &metaJSON, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l.Workflow = model.Workflow(workflow)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &l.Meta); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal meta for lead %s", l.ID)
			}
		}
		l.Normalize()
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate leads")
	}
	return leads, nil
}

func (p *Postgres) GetDashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error) {
	var m model.DashboardMetrics
	err := p.pool.QueryRow(ctx, sqlDashboardMetrics).Scan(&m.TotalCompanies, &m.AvgScore)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dashboard metrics")
	}
	return &m, nil
}

func (p *Postgres) GetStageBreakdown(ctx context.Context) ([]model.StageCount, error) {
	rows, err := p.pool.Query(ctx, sqlStageBreakdown)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stage breakdown")
	}
	defer rows.Close()

	var stages []model.StageCount
	for rows.Next() {
		var s model.StageCount
		if err := rows.Scan(&s.Stage, &s.CompanyCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		stages = append(stages, s)
	}
	return stages, eris.Wrap(rows.Err(), "postgres: iterate stages")
}

func (p *Postgres) GetFeatureFlags(ctx context.Context) (model.FeatureFlags, error) {
	rows, err := p.pool.Query(ctx, sqlFeatureFlags)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: feature flags")
	}
	defer rows.Close()

	flags := model.FeatureFlags{}
	for rows.Next() {
		var key string
		var enabled bool
		if err := rows.Scan(&key, &enabled); err != nil {
			return nil, eris.Wrap(err, "postgres: scan flag")
		}
		flags[key] = enabled
	}
	return flags, eris.Wrap(rows.Err(), "postgres: iterate flags")
}

func (p *Postgres) GetEntitledLeadIDs(ctx context.Context, userID string) (model.IDSet, error) {
	rows, err := p.pool.Query(ctx, sqlEntitledLeadIDs, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: entitled leads for %s", userID)
	}
	defer rows.Close()

	ids := model.IDSet{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead access")
		}
		ids.Add(id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate lead access")
}

func (p *Postgres) GetUserCredits(ctx context.Context, userID string) (int, error) {
	var total int64
	if err := p.pool.QueryRow(ctx, sqlUserCredits, userID).Scan(&total); err != nil {
		return 0, eris.Wrapf(err, "postgres: credits for %s", userID)
	}
	return int(total), nil
}

// UnlockLeads delegates to unlock_leads_secure, which runs in a single
// transaction under a per-user advisory lock.
func (p *Postgres) UnlockLeads(ctx context.Context, userID string, leadIDs []string) error {
	ids := dedupe(leadIDs)
	if len(ids) == 0 {
		return nil
	}

	var granted int
	err := p.pool.QueryRow(ctx, sqlUnlockLeads, userID, ids).Scan(&granted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgRaiseException {
			return &RejectedError{Reason: pgErr.Message}
		}
		return eris.Wrapf(err, "postgres: unlock %d leads for %s", len(ids), userID)
	}
	return nil
}

// leadUpsert merges seeded leads by id; created_at is kept on conflict.
var leadUpsert = db.UpsertConfig{
	Table: "leads",
	Columns: []string{"id", "company", "website", "domain", "logo_url", "email", "phone", "stage",
		"arr_estimate", "employees", "tech_stack", "intelligence_score", "workflow", "is_high_priority",
		"is_archived", "meta", "created_at", "updated_at"},
	ConflictKeys: []string{"id"},
	UpdateCols: []string{"company", "website", "domain", "logo_url", "email", "phone", "stage",
		"arr_estimate", "employees", "tech_stack", "intelligence_score", "workflow", "is_high_priority",
		"is_archived", "meta", "updated_at"},
}

func (p *Postgres) UpsertLeads(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for i := range leads {
		l := leads[i]
		l.Normalize()
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		if l.TechStack == nil {
			l.TechStack = []string{}
		}
		metaJSON, err := json.Marshal(l.Meta)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal meta for lead %s", l.ID)
		}
		created := l.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{
			l.ID, l.Company, l.Website, l.Domain, l.LogoURL, l.Email, l.Phone, l.Stage,
			l.ARREstimate, l.Employees, l.TechStack, l.IntelligenceScore, string(l.Workflow),
			l.IsHighPriority, l.IsArchived, metaJSON, created, now,
		})
	}

	n, err := db.BulkUpsert(ctx, p.pool, leadUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert leads")
	}
	return int(n), nil
}

func (p *Postgres) GrantCredits(ctx context.Context, userID string, amount int, reason string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO credit_ledger (user_id, amount, reason, ref_type) VALUES ($1, $2, $3, $4)`,
		userID, amount, reason, "grant",
	)
	return eris.Wrapf(err, "postgres: grant credits to %s", userID)
}

func (p *Postgres) SetFeatureFlag(ctx context.Context, key string, enabled bool, description string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO feature_flags (key, enabled, description, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE SET enabled = EXCLUDED.enabled, description = EXCLUDED.description, updated_at = now()`,
		key, enabled, description,
	)
	return eris.Wrapf(err, "postgres: set flag %s", key)
}
