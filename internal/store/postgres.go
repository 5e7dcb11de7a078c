package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/juristech/process-extract/internal/db"
	"github.com/juristech/process-extract/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_case":       `INSERT INTO cases (case_id, resume, persisted_at) VALUES ($1, $2, $3) ON CONFLICT (case_id) DO NOTHING`,
	"get_case":          `SELECT case_id, resume, persisted_at FROM cases WHERE case_id = $1`,
	"get_case_events":   `SELECT event_id, event_name, description, event_date, page_init, page_end FROM case_events WHERE case_id = $1 ORDER BY event_id`,
	"get_case_evidence": `SELECT evidence_id, evidence_name, evidence_flaw, page_init, page_end FROM case_evidence WHERE case_id = $1 ORDER BY evidence_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cases (
	case_id      TEXT PRIMARY KEY,
	resume       TEXT NOT NULL,
	persisted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS case_events (
	case_id     TEXT NOT NULL REFERENCES cases(case_id),
	event_id    INTEGER NOT NULL,
	event_name  TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	event_date  TEXT NOT NULL,
	page_init   INTEGER NOT NULL,
	page_end    INTEGER NOT NULL,
	PRIMARY KEY (case_id, event_id)
);

CREATE TABLE IF NOT EXISTS case_evidence (
	case_id       TEXT NOT NULL REFERENCES cases(case_id),
	evidence_id   INTEGER NOT NULL,
	evidence_name TEXT NOT NULL,
	evidence_flaw TEXT,
	page_init     INTEGER NOT NULL,
	page_end      INTEGER NOT NULL,
	PRIMARY KEY (case_id, evidence_id)
);

CREATE INDEX IF NOT EXISTS idx_cases_persisted_at ON cases(persisted_at DESC);
CREATE INDEX IF NOT EXISTS idx_case_events_case_id ON case_events(case_id);
CREATE INDEX IF NOT EXISTS idx_case_evidence_case_id ON case_evidence(case_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var (
	eventColumns    = []string{"case_id", "event_id", "event_name", "description", "event_date", "page_init", "page_end"}
	evidenceColumns = []string{"case_id", "evidence_id", "evidence_name", "evidence_flaw", "page_init", "page_end"}
)

func (s *PostgresStore) SaveCase(ctx context.Context, rec *model.CaseRecord) (*model.CaseRecord, error) {
	stamped := rec.Clone()
	if stamped.PersistedAt.IsZero() {
		stamped.PersistedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin save case")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO cases (case_id, resume, persisted_at) VALUES ($1, $2, $3) ON CONFLICT (case_id) DO NOTHING`,
		stamped.CaseID, stamped.Resume, stamped.PersistedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert case %s", stamped.CaseID)
	}
	if tag.RowsAffected() == 0 {
		// The case already exists; end the empty tx and hand back what is stored.
		_ = tx.Rollback(ctx)
		existing, err := s.GetCase(ctx, stamped.CaseID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, eris.Errorf("postgres: case %s conflicted but cannot be read back", stamped.CaseID)
		}
		return existing, nil
	}

	eventRows := make([][]any, 0, len(stamped.Timeline))
	for _, ev := range stamped.Timeline {
		eventRows = append(eventRows, []any{stamped.CaseID, ev.EventID, ev.EventName, ev.Description, ev.Date, ev.PageInit, ev.PageEnd})
	}
	if _, err := db.CopyFrom(ctx, tx, "case_events", eventColumns, eventRows); err != nil {
		return nil, err
	}

	evidenceRows := make([][]any, 0, len(stamped.Evidence))
	for _, item := range stamped.Evidence {
		evidenceRows = append(evidenceRows, []any{stamped.CaseID, item.EvidenceID, item.EvidenceName, item.EvidenceFlaw, item.PageInit, item.PageEnd})
	}
	if _, err := db.CopyFrom(ctx, tx, "case_evidence", evidenceColumns, evidenceRows); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit case %s", stamped.CaseID)
	}
	return stamped, nil
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (*model.CaseRecord, error) {
	var rec model.CaseRecord
	err := s.pool.QueryRow(ctx,
		`SELECT case_id, resume, persisted_at FROM cases WHERE case_id = $1`,
		caseID,
	).Scan(&rec.CaseID, &rec.Resume, &rec.PersistedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get case %s", caseID)
	}

	rec.Timeline, err = s.caseEvents(ctx, caseID)
	if err != nil {
		return nil, err
	}
	rec.Evidence, err = s.caseEvidence(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) caseEvents(ctx context.Context, caseID string) ([]model.TimelineEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, event_name, description, event_date, page_init, page_end FROM case_events WHERE case_id = $1 ORDER BY event_id`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get case events %s", caseID)
	}
	defer rows.Close()

	events := []model.TimelineEvent{}
	for rows.Next() {
		var ev model.TimelineEvent
		if err := rows.Scan(&ev.EventID, &ev.EventName, &ev.Description, &ev.Date, &ev.PageInit, &ev.PageEnd); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: case events iterate")
}

func (s *PostgresStore) caseEvidence(ctx context.Context, caseID string) ([]model.EvidenceItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT evidence_id, evidence_name, evidence_flaw, page_init, page_end FROM case_evidence WHERE case_id = $1 ORDER BY evidence_id`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get case evidence %s", caseID)
	}
	defer rows.Close()

	items := []model.EvidenceItem{}
	for rows.Next() {
		var item model.EvidenceItem
		if err := rows.Scan(&item.EvidenceID, &item.EvidenceName, &item.EvidenceFlaw, &item.PageInit, &item.PageEnd); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case evidence")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: case evidence iterate")
}

func (s *PostgresStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.CaseSummary, error) {
	query := `SELECT c.case_id, c.resume,
		(SELECT count(*) FROM case_events e WHERE e.case_id = c.case_id) AS event_count,
		(SELECT count(*) FROM case_evidence v WHERE v.case_id = c.case_id) AS evidence_count,
		c.persisted_at
	FROM cases c
	ORDER BY c.persisted_at DESC`
	args := []any{}
	argIdx := 1

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	summaries := []model.CaseSummary{}
	for rows.Next() {
		var cs model.CaseSummary
		if err := rows.Scan(&cs.CaseID, &cs.Resume, &cs.EventCount, &cs.EvidenceCount, &cs.PersistedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case summary")
		}
		summaries = append(summaries, cs)
	}
	return summaries, eris.Wrap(rows.Err(), "postgres: list cases iterate")
}
