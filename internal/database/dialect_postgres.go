package database

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	_ "github.com/lib/pq"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
)

// PostgresDialect implements Dialect for PostgreSQL. Tables are resolved in
// the connection's current schema.
type PostgresDialect struct{}

func (d *PostgresDialect) Engine() config.Engine { return config.EnginePostgres }
func (d *PostgresDialect) DriverName() string    { return "postgres" }
func (d *PostgresDialect) URIScheme() string     { return "postgres" }

func (d *PostgresDialect) DSN(cfg config.Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", fmt.Errorf("postgres requires host and database")
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = config.DefaultSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, cfg.PortOrDefault()),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	switch {
	case cfg.User != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.User, cfg.Password)
	case cfg.User != "":
		u.User = url.User(cfg.User)
	}
	return u.String(), nil
}

func (d *PostgresDialect) Locator(cfg config.Config) string {
	return net.JoinHostPort(cfg.Host, cfg.PortOrDefault()) + "/" + cfg.Database
}

func (d *PostgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgresDialect) ListTablesQuery() (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`, nil
}

func (d *PostgresDialect) TableExistsQuery(table string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' AND table_name = $1`, []any{table}
}

func (d *PostgresDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT c.column_name, c.data_type, c.is_nullable = 'NO', c.column_default,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
					AND tc.table_name = kcu.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND kcu.column_name = c.column_name
			)
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema() AND c.table_name = $1
		ORDER BY c.ordinal_position`, []any{table}
}

func (d *PostgresDialect) ScanColumn(row Scanner) (Column, error) {
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
