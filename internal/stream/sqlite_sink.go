package stream

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"db-health-agent/internal/model"
)

const reportSchema = `
CREATE TABLE IF NOT EXISTS health_reports (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	node_id       TEXT    NOT NULL,
	cycle         INTEGER NOT NULL,
	completed_at  INTEGER NOT NULL,
	worst_level   TEXT    NOT NULL,
	abandoned     INTEGER NOT NULL,
	payload       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_health_reports_completed_at ON health_reports (completed_at);
`

// SQLiteSink journals reports to a local database, keeping at most retention rows.
type SQLiteSink struct {
	mu sync.Mutex

	logger    *slog.Logger
	db        *sql.DB
	retention int
}

func ConnectSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(500)", path))
}

func NewSQLiteSink(ctx context.Context, path string, retention int, logger *slog.Logger) (*SQLiteSink, error) {
	db, err := ConnectSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, reportSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create report schema: %w", err)
	}
	return &SQLiteSink{logger: logger, db: db, retention: retention}, nil
}

func (s *SQLiteSink) SendReport(ctx context.Context, r model.Report) error {
	payload, err := EncodeEnvelope(model.NewReportEnvelope(r))
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("sqlite sink closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO health_reports (id, node_id, cycle, completed_at, worst_level, abandoned, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.NodeID, int64(r.Cycle), r.CompletedAt.UTC().UnixMilli(), r.Stats.WorstLevel.String(), r.Stats.Abandoned, string(payload),
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	if s.retention > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM health_reports WHERE seq <= (SELECT MAX(seq) FROM health_reports) - ?`,
			s.retention,
		); err != nil {
			return fmt.Errorf("trim reports: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	s.logger.Debug("report journaled", "report_id", r.ID, "cycle", r.Cycle)
	return nil
}

// Reports returns up to limit journaled reports, newest first.
func (s *SQLiteSink) Reports(ctx context.Context, limit int) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("sqlite sink closed")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM health_reports ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var env struct {
			Payload model.Report `json:"payload"`
		}
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, env.Payload)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	_ = ctx
	return err
}
