// Package audit persists a local log of license administration actions.
// Grants and revocations are the kind of operation people ask about after
// the fact, so every tool invocation is recorded with its outcome.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Record is one audited license operation.
type Record struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`
	Agent         string    `json:"agent"`
	Operation     string    `json:"operation"`
	Principal     string    `json:"principal,omitempty"`
	LicenseConfig string    `json:"license_config,omitempty"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
}

// Store persists audit records to SQLite or PostgreSQL.
type Store struct {
	db         *sql.DB
	isPostgres bool
}

// NewStore opens the audit store. A DSN starting with "postgres://" or
// "postgresql://" selects the PostgreSQL backend (pgx); anything else is
// treated as a SQLite file path.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "license_audit.db"
	}
	isPostgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	var db *sql.DB
	var err error
	if isPostgres {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	} else {
		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create audit directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := createTables(db, isPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, isPostgres: isPostgres}, nil
}

func createTables(db *sql.DB, isPostgres bool) error {
	pkDef := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if isPostgres {
		pkDef = "BIGSERIAL PRIMARY KEY"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS license_audit (
		id %s,
		event_id TEXT UNIQUE NOT NULL,
		timestamp TEXT NOT NULL,
		session_id TEXT NOT NULL,
		agent TEXT,
		operation TEXT NOT NULL,
		principal TEXT,
		license_config TEXT,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER
	);
	`, pkDef)
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	indexes := `
	CREATE INDEX IF NOT EXISTS idx_license_audit_timestamp ON license_audit(timestamp);
	CREATE INDEX IF NOT EXISTS idx_license_audit_operation ON license_audit(operation);
	CREATE INDEX IF NOT EXISTS idx_license_audit_principal ON license_audit(principal);
	`
	_, err := db.Exec(indexes)
	return err
}

// rebind rewrites ? placeholders into $N placeholders for PostgreSQL.
func rebind(isPostgres bool, query string) string {
	if !isPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Record persists one audit record, filling in defaults for EventID and
// Timestamp when unset.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	if rec.EventID == "" {
		rec.EventID = "lic_" + uuid.New().String()[:8]
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, rebind(s.isPostgres, `
		INSERT INTO license_audit (
			event_id, timestamp, session_id, agent, operation,
			principal, license_config, status, error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		rec.EventID,
		rec.Timestamp.Format(time.RFC3339Nano),
		rec.SessionID,
		rec.Agent,
		rec.Operation,
		rec.Principal,
		rec.LicenseConfig,
		rec.Status,
		rec.Error,
		rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// QueryOptions filters audit queries.
type QueryOptions struct {
	Operation string
	Principal string
	Status    string
	Since     time.Time
	Limit     int
}

// Query returns records matching the filters, most recent first.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]Record, error) {
	query := `SELECT event_id, timestamp, session_id, agent, operation,
		principal, license_config, status, error, duration_ms
		FROM license_audit WHERE 1=1`
	var args []any

	if opts.Operation != "" {
		query += " AND operation = ?"
		args = append(args, opts.Operation)
	}
	if opts.Principal != "" {
		query += " AND principal = ?"
		args = append(args, opts.Principal)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, opts.Status)
	}
	if !opts.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, opts.Since.Format(time.RFC3339Nano))
	}
	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, rebind(s.isPostgres, query), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ts string
		if err := rows.Scan(&rec.EventID, &ts, &rec.SessionID, &rec.Agent,
			&rec.Operation, &rec.Principal, &rec.LicenseConfig,
			&rec.Status, &rec.Error, &rec.DurationMs); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}
