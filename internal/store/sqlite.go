package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Schema versions are tracked in the schema_versions table; migrations are
// applied in order on open.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS anomaly_events (
    id           TEXT PRIMARY KEY,
    service      TEXT NOT NULL DEFAULT '',
    metric       TEXT NOT NULL DEFAULT '',
    anomaly_type TEXT NOT NULL DEFAULT '',
    severity     TEXT NOT NULL DEFAULT 'info',
    method       TEXT NOT NULL DEFAULT '',
    score        REAL NOT NULL DEFAULT 0.0,
    expected     REAL NOT NULL DEFAULT 0.0,
    actual       REAL NOT NULL DEFAULT 0.0,
    description  TEXT NOT NULL DEFAULT '',
    resolved     BOOLEAN NOT NULL DEFAULT 0,
    note         TEXT NOT NULL DEFAULT '',
    detected_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomaly_detected_at ON anomaly_events(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_anomaly_service     ON anomaly_events(service);
CREATE INDEX IF NOT EXISTS idx_anomaly_severity    ON anomaly_events(severity);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS cost_points (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    service     TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    amount      REAL NOT NULL DEFAULT 0.0,
    recorded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_points_pair ON cost_points(service, category, recorded_at);

CREATE TABLE IF NOT EXISTS cost_anomalies (
    id          TEXT PRIMARY KEY,
    service     TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    severity    TEXT NOT NULL DEFAULT 'low',
    direction   TEXT NOT NULL DEFAULT 'spike',
    score       REAL NOT NULL DEFAULT 0.0,
    expected    REAL NOT NULL DEFAULT 0.0,
    actual      REAL NOT NULL DEFAULT 0.0,
    detected_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_anomalies_detected_at ON cost_anomalies(detected_at DESC);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS scaling_decisions (
    id               TEXT PRIMARY KEY,
    service          TEXT NOT NULL DEFAULT '',
    action           TEXT NOT NULL DEFAULT 'maintain',
    target_instances INTEGER NOT NULL DEFAULT 0,
    confidence       REAL NOT NULL DEFAULT 0.0,
    reasoning        TEXT NOT NULL DEFAULT '',
    cost_impact      REAL NOT NULL DEFAULT 0.0,
    decided_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_service ON scaling_decisions(service, decided_at DESC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL mode for better concurrency.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Anomalies ────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendAnomaly(ctx context.Context, rec *AnomalyRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO anomaly_events(id, service, metric, anomaly_type, severity, method, score, expected, actual, description, resolved, detected_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		rec.ID, rec.Service, rec.Metric, rec.AnomalyType, rec.Severity, rec.Method,
		rec.Score, rec.Expected, rec.Actual, rec.Description, rec.Resolved, rec.DetectedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (s *sqliteStore) MarkAnomalyResolved(ctx context.Context, id string, note string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE anomaly_events SET resolved=1, note=? WHERE id=?`, note, id)
	if err != nil {
		return fmt.Errorf("resolve anomaly: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *sqliteStore) QueryAnomalies(ctx context.Context, q AnomalyQuery) ([]*AnomalyRecord, error) {
	query := `SELECT id, service, metric, anomaly_type, severity, method, score, expected, actual, description, resolved, detected_at
              FROM anomaly_events WHERE 1=1`
	var args []interface{}
	if q.Service != "" {
		query += ` AND service=?`
		args = append(args, q.Service)
	}
	if q.Severity != "" {
		query += ` AND severity=?`
		args = append(args, q.Severity)
	}
	if !q.From.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY detected_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []*AnomalyRecord
	for rows.Next() {
		var rec AnomalyRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Service, &rec.Metric, &rec.AnomalyType, &rec.Severity, &rec.Method,
			&rec.Score, &rec.Expected, &rec.Actual, &rec.Description, &rec.Resolved, &ts); err != nil {
			return nil, err
		}
		rec.DetectedAt, _ = parseTime(ts)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AnomalyCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT severity, COUNT(*) FROM anomaly_events
        WHERE detected_at >= ? AND detected_at <= ?
        GROUP BY severity
    `, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("anomaly counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		out[severity] = count
	}
	return out, rows.Err()
}

// ─── Cost ─────────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendCostPoint(ctx context.Context, rec *CostPointRecord) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO cost_points(service, category, amount, recorded_at) VALUES(?,?,?,?)
    `, rec.Service, rec.Category, rec.Amount, rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert cost point: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqliteStore) QueryCostPoints(ctx context.Context, service, category string, from, to time.Time, limit int) ([]*CostPointRecord, error) {
	query := `SELECT id, service, category, amount, recorded_at FROM cost_points WHERE 1=1`
	var args []interface{}
	if service != "" {
		query += ` AND service=?`
		args = append(args, service)
	}
	if category != "" {
		query += ` AND category=?`
		args = append(args, category)
	}
	if !from.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY recorded_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost points: %w", err)
	}
	defer rows.Close()

	var out []*CostPointRecord
	for rows.Next() {
		var rec CostPointRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Service, &rec.Category, &rec.Amount, &ts); err != nil {
			return nil, err
		}
		rec.RecordedAt, _ = parseTime(ts)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendCostAnomaly(ctx context.Context, rec *CostAnomalyRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO cost_anomalies(id, service, category, severity, direction, score, expected, actual, detected_at)
        VALUES(?,?,?,?,?,?,?,?,?)
    `, rec.ID, rec.Service, rec.Category, rec.Severity, rec.Direction, rec.Score, rec.Expected, rec.Actual, rec.DetectedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert cost anomaly: %w", err)
	}
	return nil
}

func (s *sqliteStore) QueryCostAnomalies(ctx context.Context, from, to time.Time, limit int) ([]*CostAnomalyRecord, error) {
	query := `SELECT id, service, category, severity, direction, score, expected, actual, detected_at
              FROM cost_anomalies WHERE 1=1`
	var args []interface{}
	if !from.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY detected_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost anomalies: %w", err)
	}
	defer rows.Close()

	var out []*CostAnomalyRecord
	for rows.Next() {
		var rec CostAnomalyRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Service, &rec.Category, &rec.Severity, &rec.Direction,
			&rec.Score, &rec.Expected, &rec.Actual, &ts); err != nil {
			return nil, err
		}
		rec.DetectedAt, _ = parseTime(ts)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ─── Decisions ────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendDecision(ctx context.Context, rec *DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO scaling_decisions(id, service, action, target_instances, confidence, reasoning, cost_impact, decided_at)
        VALUES(?,?,?,?,?,?,?,?)
    `, rec.ID, rec.Service, rec.Action, rec.TargetInstances, rec.Confidence, rec.Reasoning, rec.CostImpact, rec.DecidedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *sqliteStore) QueryDecisions(ctx context.Context, service string, limit int) ([]*DecisionRecord, error) {
	query := `SELECT id, service, action, target_instances, confidence, reasoning, cost_impact, decided_at
              FROM scaling_decisions WHERE 1=1`
	var args []interface{}
	if service != "" {
		query += ` AND service=?`
		args = append(args, service)
	}
	query += ` ORDER BY decided_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Service, &rec.Action, &rec.TargetInstances,
			&rec.Confidence, &rec.Reasoning, &rec.CostImpact, &ts); err != nil {
			return nil, err
		}
		rec.DecidedAt, _ = parseTime(ts)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// parseTime handles the timestamp formats SQLite hands back.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
