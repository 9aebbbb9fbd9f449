package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
)

// SQLiteDialect implements Dialect for SQLite database files.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Engine() config.Engine { return config.EngineSQLite }
func (d *SQLiteDialect) DriverName() string    { return "sqlite" }
func (d *SQLiteDialect) URIScheme() string     { return "sqlite" }

func (d *SQLiteDialect) DSN(cfg config.Config) (string, error) {
	if cfg.Path == "" {
		return "", fmt.Errorf("missing sqlite database path")
	}
	if strings.Contains(cfg.Path, "?") {
		return cfg.Path, nil
	}
	return cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
}

func (d *SQLiteDialect) Locator(cfg config.Config) string {
	path := cfg.Path
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	return path
}

func (d *SQLiteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *SQLiteDialect) ListTablesQuery() (string, []any) {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`, nil
}

func (d *SQLiteDialect) TableExistsQuery(table string) (string, []any) {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, []any{table}
}

func (d *SQLiteDialect) ColumnsQuery(table string) (string, []any) {
	// PRAGMA arguments cannot be bound, so the name is quoted instead.
	return fmt.Sprintf("PRAGMA table_info(%s)", d.QuoteIdent(table)), nil
}

func (d *SQLiteDialect) ScanColumn(row Scanner) (Column, error) {
	// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
	var cid, notNull, pk int
	var name, colType string
	var dflt sql.NullString

	if err := row.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
		return Column{}, err
	}
	return Column{
		Name:         name,
		Type:         colType,
		NotNull:      notNull != 0,
		DefaultValue: nullString(dflt),
		PrimaryKey:   pk > 0,
	}, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
