// Package journal records executed commands in a local SQLite database.
// Recording is best-effort: callers log failures and move on, a broken
// journal never fails the command that triggered it.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Outcome values for recorded operations.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Entry is one recorded CLI operation.
type Entry struct {
	ID          int64
	ReferenceID string
	Command     string // "init", "start", "stop", "state restore"
	Arguments   string
	Outcome     string
	Detail      string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// =============================================================================
// Journal
// =============================================================================

// Journal is the operations history backed by SQLite.
type Journal struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens the journal database, creating it and its schema when missing.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Journal{db: db, logger: logger.With("component", "journal")}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// =============================================================================
// Operations
// =============================================================================

// operationRow represents an operation row in the database.
type operationRow struct {
	ID          int64  `db:"id"`
	ReferenceID string `db:"reference_id"`
	Command     string `db:"command"`
	Arguments   string `db:"arguments"`
	Outcome     string `db:"outcome"`
	Detail      string `db:"detail"`
	StartedAt   string `db:"started_at"`
	FinishedAt  string `db:"finished_at"`
}

// Record inserts an entry. A missing reference id is generated and missing
// timestamps default to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.ReferenceID == "" {
		e.ReferenceID = uuid.New().String()
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}

	query := `
		INSERT INTO operations (
			reference_id, command, arguments, outcome, detail, started_at, finished_at
		) VALUES (
			:reference_id, :command, :arguments, :outcome, :detail, :started_at, :finished_at
		)`

	row := map[string]any{
		"reference_id": e.ReferenceID,
		"command":      e.Command,
		"arguments":    e.Arguments,
		"outcome":      e.Outcome,
		"detail":       e.Detail,
		"started_at":   e.StartedAt.UTC().Format(time.RFC3339),
		"finished_at":  e.FinishedAt.UTC().Format(time.RFC3339),
	}

	if _, err := j.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("record operation: %w", err)
	}

	j.logger.Debug("operation recorded", "command", e.Command, "outcome", e.Outcome)
	return nil
}

// List returns recorded operations, newest first.
func (j *Journal) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM operations ORDER BY id DESC LIMIT ? OFFSET ?`

	var rows []operationRow
	if err := j.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rowToEntry(&rows[i]))
	}
	return entries, nil
}

func rowToEntry(row *operationRow) Entry {
	startedAt, _ := time.Parse(time.RFC3339, row.StartedAt)
	finishedAt, _ := time.Parse(time.RFC3339, row.FinishedAt)

	return Entry{
		ID:          row.ID,
		ReferenceID: row.ReferenceID,
		Command:     row.Command,
		Arguments:   row.Arguments,
		Outcome:     row.Outcome,
		Detail:      row.Detail,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
}
