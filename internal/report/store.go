// Package report persists verification outcomes of a harness run to a
// relational database (SQLite file or PostgreSQL).
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/LeJamon/goEscrowConform/internal/verify"
)

// Supported drivers.
const (
	DriverNone     = ""
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported report driver")
)

// Config holds the report store configuration.
type Config struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Validate checks the fields required by the selected driver.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverNone:
		return nil
	case DriverSQLite:
		if c.Path == "" {
			return errors.New("report.path is required for the sqlite driver")
		}
		return nil
	case DriverPostgres:
		if c.Host == "" || c.Database == "" {
			return errors.New("report.host and report.database are required for the postgres driver")
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}
}

func (c Config) dataSource() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.Database, c.User, c.Password,
	)
}

// Entry is one recorded verification outcome.
type Entry struct {
	RunID      string
	Scenario   string
	Check      string
	Passed     bool
	Expected   string
	Actual     string
	RecordedAt time.Time
}

// Recorder receives verification outcomes.
type Recorder interface {
	RunID() string
	Record(ctx context.Context, scenario string, o verify.Outcome) error
	Close() error
}

// Open returns a recorder for cfg. An empty driver yields a recorder that
// keeps nothing.
func Open(ctx context.Context, cfg Config) (Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == DriverNone {
		return Nop(), nil
	}
	return OpenStore(ctx, cfg)
}

// Store is a database-backed Recorder.
type Store struct {
	db     *sql.DB
	driver string
	runID  string
}

// OpenStore connects to the database and creates the results table.
func OpenStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open(cfg.Driver, cfg.dataSource())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db, driver: cfg.Driver, runID: uuid.NewString()}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}
	schema := `
		CREATE TABLE IF NOT EXISTS scenario_results (
			id          ` + idColumn + `,
			run_id      TEXT NOT NULL,
			scenario    TEXT NOT NULL,
			check_name  TEXT NOT NULL,
			passed      BOOLEAN NOT NULL,
			expected    TEXT NOT NULL,
			actual      TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating scenario_results: %w", err)
	}
	return nil
}

// placeholders returns n bind markers in the driver's dialect.
func (s *Store) placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		if s.driver == DriverPostgres {
			out[i] = fmt.Sprintf("$%d", i+1)
		} else {
			out[i] = "?"
		}
	}
	return out
}

// RunID identifies the rows written by this store.
func (s *Store) RunID() string {
	return s.runID
}

// Record inserts one outcome.
func (s *Store) Record(ctx context.Context, scenario string, o verify.Outcome) error {
	p := s.placeholders(7)
	query := fmt.Sprintf(`
		INSERT INTO scenario_results (run_id, scenario, check_name, passed, expected, actual, recorded_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s)
	`, p[0], p[1], p[2], p[3], p[4], p[5], p[6])

	_, err := s.db.ExecContext(ctx, query,
		s.runID, scenario, o.Check, o.Passed, o.Expected, o.Actual, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording %s/%s: %w", scenario, o.Check, err)
	}
	return nil
}

// Entries returns every row of a run in insertion order.
func (s *Store) Entries(ctx context.Context, runID string) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT run_id, scenario, check_name, passed, expected, actual, recorded_at
		FROM scenario_results
		WHERE run_id = %s
		ORDER BY id
	`, s.placeholders(1)[0])

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.Scenario, &e.Check, &e.Passed, &e.Expected, &e.Actual, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type nopRecorder struct{}

// Nop returns a Recorder that discards outcomes.
func Nop() Recorder { return nopRecorder{} }

func (nopRecorder) RunID() string                                        { return "" }
func (nopRecorder) Record(context.Context, string, verify.Outcome) error { return nil }
func (nopRecorder) Close() error                                         { return nil }
