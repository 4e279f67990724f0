package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

type PostgresConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSink inserts one row per measurement into a table with the columns
// radiation, cpm and time.
type PostgresSink struct {
	lifecycle
	db        *sql.DB
	tableName string
}

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	s := &PostgresSink{db: db, tableName: table}
	s.enabled.Store(db != nil)
	return s
}

// OpenPostgres connects to the database and keeps the connection for the
// lifetime of the sink.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if !cfg.Enabled {
		return &PostgresSink{}, nil
	}
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: conn_string is required")
	}
	if cfg.Table == "" {
		cfg.Table = "radiation"
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", cfg.Table)
	}

	db, err := sql.Open("postgres", cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: connection failed: %w", err)
	}
	return NewPostgresSink(db, cfg.Table), nil
}

func (t *PostgresSink) Name() string { return "postgres" }

func (t *PostgresSink) Update(ctx context.Context, m domain.Measurement) error {
	if t.db == nil {
		return sinkErr(t.Name(), "database is not connected")
	}
	query := "INSERT INTO " + t.tableName + " (radiation, cpm, time) VALUES ($1,$2,$3)"
	_, err := t.db.ExecContext(ctx, query, nullFloat(m.Radiation), nullFloat(m.CPM), m.Timestamp)
	if err != nil {
		return sinkErr(t.Name(), "could not insert new row to the table: %v", err)
	}
	return nil
}

func (t *PostgresSink) Close() error {
	t.disable()
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var _ ports.Sink = (*PostgresSink)(nil)
