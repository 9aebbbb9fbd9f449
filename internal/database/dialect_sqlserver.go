package database

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
)

// SQLServerDialect implements Dialect for Microsoft SQL Server. Identifiers
// are bracket-quoted and tables resolve in the login's default schema.
type SQLServerDialect struct{}

func (d *SQLServerDialect) Engine() config.Engine { return config.EngineSQLServer }
func (d *SQLServerDialect) DriverName() string    { return "sqlserver" }
func (d *SQLServerDialect) URIScheme() string     { return "sqlserver" }

func (d *SQLServerDialect) DSN(cfg config.Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", fmt.Errorf("sqlserver requires host and database")
	}
	u := url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(cfg.Host, cfg.PortOrDefault()),
		RawQuery: url.Values{"database": {cfg.Database}}.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String(), nil
}

func (d *SQLServerDialect) Locator(cfg config.Config) string {
	return net.JoinHostPort(cfg.Host, cfg.PortOrDefault()) + "/" + cfg.Database
}

func (d *SQLServerDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *SQLServerDialect) ListTablesQuery() (string, []any) {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME()
		ORDER BY TABLE_NAME`, nil
}

func (d *SQLServerDialect) TableExistsQuery(table string) (string, []any) {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1`, []any{table}
}

func (d *SQLServerDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT c.COLUMN_NAME, c.DATA_TYPE,
			CAST(CASE WHEN c.IS_NULLABLE = 'NO' THEN 1 ELSE 0 END AS BIT),
			c.COLUMN_DEFAULT,
			CAST(CASE WHEN EXISTS (
				SELECT 1
				FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
				JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
					ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
					AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
				WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
					AND tc.TABLE_SCHEMA = c.TABLE_SCHEMA
					AND tc.TABLE_NAME = c.TABLE_NAME
					AND kcu.COLUMN_NAME = c.COLUMN_NAME
			) THEN 1 ELSE 0 END AS BIT)
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = SCHEMA_NAME() AND c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION`, []any{table}
}

func (d *SQLServerDialect) ScanColumn(row Scanner) (Column, error) {
	var name, dataType string
	var notNull, pk bool
	var dflt sql.NullString

	if err := row.Scan(&name, &dataType, &notNull, &dflt, &pk); err != nil {
		return Column{}, err
	}
	return Column{
		Name:         name,
		Type:         dataType,
		NotNull:      notNull,
		DefaultValue: nullString(dflt),
		PrimaryKey:   pk,
	}, nil
}
