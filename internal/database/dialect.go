package database

import (
	"fmt"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
)

// Dialect isolates everything engine-specific: connection strings, catalog
// queries, identifier quoting and literal syntax. Exactly one Dialect is
// active per process, chosen by DialectFor at startup.
type Dialect interface {
	// Engine returns the engine kind this dialect serves.
	Engine() config.Engine

	// DriverName returns the database/sql driver name.
	DriverName() string

	// URIScheme returns the resource URI scheme (e.g. "sqlite", "postgres").
	URIScheme() string

	// DSN builds the driver connection string from the startup configuration.
	DSN(cfg config.Config) (string, error)

	// Locator identifies the connected database inside resource URIs.
	Locator(cfg config.Config) string

	// QuoteIdent quotes a table or column name for interpolation into SQL.
	QuoteIdent(name string) string

	// ListTablesQuery lists user tables, excluding engine catalog tables.
	ListTablesQuery() (string, []any)

	// TableExistsQuery returns a query yielding one row per matching user table.
	TableExistsQuery(table string) (string, []any)

	// ColumnsQuery returns the column metadata query for a table.
	ColumnsQuery(table string) (string, []any)

	// ScanColumn scans one row of ColumnsQuery.
	ScanColumn(row Scanner) (Column, error)
}

// Scanner is the subset of *sql.Rows used by Dialect.ScanColumn.
type Scanner interface {
	Scan(dest ...any) error
}

// Column describes one table column.
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	NotNull      bool    `json:"notnull"`
	DefaultValue *string `json:"default_value"`
	PrimaryKey   bool    `json:"primary_key"`
}

// DialectFor returns the dialect for an engine kind.
func DialectFor(engine config.Engine) (Dialect, error) {
	switch engine {
	case config.EngineSQLite:
		return &SQLiteDialect{}, nil
	case config.EnginePostgres:
		return &PostgresDialect{}, nil
	case config.EngineMySQL:
		return &MySQLDialect{}, nil
	case config.EngineSQLServer:
		return &SQLServerDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %q", engine)
	}
}
