package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
)

// ConnectTimeout bounds the startup ping.
const ConnectTimeout = 10 * time.Second

// ErrConnection marks a failure to open the backing database. It is fatal to
// startup and never retried.
var ErrConnection = errors.New("database connection failed")

// Row is one result row keyed by column name.
type Row map[string]any

// RowSet is an ordered query result.
type RowSet struct {
	Columns []string
	Rows    []Row
}

// ExecResult reports the effect of a data-modifying statement. LastInsertID
// is zero on engines that do not report one.
type ExecResult struct {
	RowsAffected int64 `json:"affected_rows"`
	LastInsertID int64 `json:"last_insert_id,omitempty"`
}

// DB owns the single live connection to the configured engine. All methods
// are safe for concurrent use; the underlying pool is capped at one open
// connection so statements execute one at a time.
type DB struct {
	log     *slog.Logger
	dialect Dialect
	locator string

	mu     sync.Mutex
	db     *sqlx.DB
	closed bool
}

// Open connects to the engine described by cfg and verifies the connection.
// Any failure is wrapped with ErrConnection.
func Open(ctx context.Context, log *slog.Logger, dialect Dialect, cfg config.Config) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn, err := dialect.DSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrConnection, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %v", ErrConnection, err)
	}

	d := &DB{
		log:     log,
		dialect: dialect,
		locator: dialect.Locator(cfg),
		db:      db,
	}
	log.Info("database: connected", "engine", dialect.Engine(), "locator", d.locator)
	return d, nil
}

// Dialect returns the active engine dialect.
func (d *DB) Dialect() Dialect { return d.dialect }

// Locator returns the connection locator used in resource URIs.
func (d *DB) Locator() string { return d.locator }

// QuoteIdent quotes an identifier for the active engine.
func (d *DB) QuoteIdent(name string) string { return d.dialect.QuoteIdent(name) }

func (d *DB) conn() (*sqlx.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil || d.closed {
		return nil, fmt.Errorf("database is not open")
	}
	return d.db, nil
}

// QueryAll runs a row-returning statement and collects every row.
func (d *DB) QueryAll(ctx context.Context, query string, args ...any) (RowSet, error) {
	db, err := d.conn()
	if err != nil {
		return RowSet{}, err
	}

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return RowSet{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return RowSet{}, fmt.Errorf("failed to get columns: %w", err)
	}

	result := RowSet{Columns: columns, Rows: []Row{}}
	for rows.Next() {
		raw := make(map[string]any, len(columns))
		if err := rows.MapScan(raw); err != nil {
			return RowSet{}, fmt.Errorf("failed to scan row %d: %w", len(result.Rows)+1, err)
		}
		row := make(Row, len(raw))
		for col, val := range raw {
			// []byte is not JSON friendly; drivers return text columns this way.
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return RowSet{}, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

// Execute runs a single data-modifying statement.
func (d *DB) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	db, err := d.conn()
	if err != nil {
		return ExecResult{}, err
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	// lib/pq and go-mssqldb do not support LastInsertId.
	lastID, err := res.LastInsertId()
	if err != nil {
		lastID = 0
	}
	return ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

// ExecuteScript runs the text as one batch without parameters. Engines run
// every statement in the batch; the first failing statement aborts it.
func (d *DB) ExecuteScript(ctx context.Context, script string) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, script)
	return err
}

// ListTables returns the user tables of the connected database.
func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	query, args := d.dialect.ListTablesQuery()
	tables := []string{}
	if err := db.SelectContext(ctx, &tables, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// TableExists reports whether a user table with exactly this name exists.
func (d *DB) TableExists(ctx context.Context, table string) (bool, error) {
	db, err := d.conn()
	if err != nil {
		return false, err
	}
	query, args := d.dialect.TableExistsQuery(table)
	var found []string
	if err := db.SelectContext(ctx, &found, query, args...); err != nil {
		return false, fmt.Errorf("failed to look up table: %w", err)
	}
	return len(found) > 0, nil
}

// Columns returns the column metadata of a table in declaration order. An
// unknown table yields an empty slice.
func (d *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}
	query, args := d.dialect.ColumnsQuery(table)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	defer rows.Close()

	columns := []Column{}
	for rows.Next() {
		col, err := d.dialect.ScanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading schema: %w", err)
	}
	return columns, nil
}

// Close releases the connection. It is idempotent and safe on a DB that was
// never opened.
func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil || d.closed {
		return nil
	}
	d.closed = true
	if d.log != nil {
		d.log.Info("database: closing connection")
	}
	return d.db.Close()
}
