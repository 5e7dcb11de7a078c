package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/juristech/process-extract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cases (
	case_id      TEXT PRIMARY KEY,
	resume       TEXT NOT NULL,
	persisted_at DATETIME NOT NULL DEFAULT (datetime('now'))
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

CREATE INDEX IF NOT EXISTS idx_cases_persisted_at ON cases(persisted_at);
CREATE INDEX IF NOT EXISTS idx_case_events_case_id ON case_events(case_id);
CREATE INDEX IF NOT EXISTS idx_case_evidence_case_id ON case_evidence(case_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCase(ctx context.Context, rec *model.CaseRecord) (*model.CaseRecord, error) {
	stamped := rec.Clone()
	if stamped.PersistedAt.IsZero() {
		stamped.PersistedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save case")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO cases (case_id, resume, persisted_at) VALUES (?, ?, ?)`,
		stamped.CaseID, stamped.Resume, stamped.PersistedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert case %s", stamped.CaseID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// The case already exists; end the empty tx and hand back what is stored.
		_ = tx.Rollback()
		existing, err := s.GetCase(ctx, stamped.CaseID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, eris.Errorf("sqlite: case %s conflicted but cannot be read back", stamped.CaseID)
		}
		return existing, nil
	}

	for _, ev := range stamped.Timeline {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO case_events (case_id, event_id, event_name, description, event_date, page_init, page_end) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			stamped.CaseID, ev.EventID, ev.EventName, ev.Description, ev.Date, ev.PageInit, ev.PageEnd,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert event %d for case %s", ev.EventID, stamped.CaseID)
		}
	}

	for _, item := range stamped.Evidence {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO case_evidence (case_id, evidence_id, evidence_name, evidence_flaw, page_init, page_end) VALUES (?, ?, ?, ?, ?, ?)`,
			stamped.CaseID, item.EvidenceID, item.EvidenceName, item.EvidenceFlaw, item.PageInit, item.PageEnd,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert evidence %d for case %s", item.EvidenceID, stamped.CaseID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit case %s", stamped.CaseID)
	}
	return stamped, nil
}

func (s *SQLiteStore) GetCase(ctx context.Context, caseID string) (*model.CaseRecord, error) {
	var rec model.CaseRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT case_id, resume, persisted_at FROM cases WHERE case_id = ?`,
		caseID,
	).Scan(&rec.CaseID, &rec.Resume, &rec.PersistedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get case %s", caseID)
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

func (s *SQLiteStore) caseEvents(ctx context.Context, caseID string) ([]model.TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_name, description, event_date, page_init, page_end FROM case_events WHERE case_id = ? ORDER BY event_id`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get case events %s", caseID)
	}
	defer rows.Close()

	events := []model.TimelineEvent{}
	for rows.Next() {
		var ev model.TimelineEvent
		if err := rows.Scan(&ev.EventID, &ev.EventName, &ev.Description, &ev.Date, &ev.PageInit, &ev.PageEnd); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: case events iterate")
}

func (s *SQLiteStore) caseEvidence(ctx context.Context, caseID string) ([]model.EvidenceItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT evidence_id, evidence_name, evidence_flaw, page_init, page_end FROM case_evidence WHERE case_id = ? ORDER BY evidence_id`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get case evidence %s", caseID)
	}
	defer rows.Close()

	items := []model.EvidenceItem{}
	for rows.Next() {
		var item model.EvidenceItem
		var flaw sql.NullString
		if err := rows.Scan(&item.EvidenceID, &item.EvidenceName, &flaw, &item.PageInit, &item.PageEnd); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case evidence")
		}
		if flaw.Valid {
			f := flaw.String
			item.EvidenceFlaw = &f
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: case evidence iterate")
}

func (s *SQLiteStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.CaseSummary, error) {
	query := `SELECT c.case_id, c.resume,
		(SELECT count(*) FROM case_events e WHERE e.case_id = c.case_id) AS event_count,
		(SELECT count(*) FROM case_evidence v WHERE v.case_id = c.case_id) AS evidence_count,
		c.persisted_at
	FROM cases c
	ORDER BY c.persisted_at DESC`
	var args []any

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close()

	summaries := []model.CaseSummary{}
	for rows.Next() {
		var cs model.CaseSummary
		if err := rows.Scan(&cs.CaseID, &cs.Resume, &cs.EventCount, &cs.EvidenceCount, &cs.PersistedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case summary")
		}
		summaries = append(summaries, cs)
	}
	return summaries, eris.Wrap(rows.Err(), "sqlite: list cases iterate")
}
