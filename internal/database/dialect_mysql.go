package database

import (
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
)

// MySQLDialect implements Dialect for MySQL and MariaDB.
type MySQLDialect struct{}

func (d *MySQLDialect) Engine() config.Engine { return config.EngineMySQL }
func (d *MySQLDialect) DriverName() string    { return "mysql" }
func (d *MySQLDialect) URIScheme() string     { return "mysql" }

func (d *MySQLDialect) DSN(cfg config.Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", fmt.Errorf("mysql requires host and database")
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.PortOrDefault())
	mc.DBName = cfg.Database
	mc.ParseTime = true
	// create_table and alter_table run caller text as one script.
	mc.MultiStatements = true
	return mc.FormatDSN(), nil
}

func (d *MySQLDialect) Locator(cfg config.Config) string {
	return net.JoinHostPort(cfg.Host, cfg.PortOrDefault()) + "/" + cfg.Database
}

func (d *MySQLDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *MySQLDialect) ListTablesQuery() (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`, nil
}

func (d *MySQLDialect) TableExistsQuery(table string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' AND table_name = ?`, []any{table}
}

func (d *MySQLDialect) ColumnsQuery(table string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, []any{table}
}

func (d *MySQLDialect) ScanColumn(row Scanner) (Column, error) {
	var name, dataType, isNullable, colKey string
	var dflt sql.NullString

	if err := row.Scan(&name, &dataType, &isNullable, &dflt, &colKey); err != nil {
		return Column{}, err
	}
	return Column{
		Name:         name,
		Type:         dataType,
		NotNull:      isNullable == "NO",
		DefaultValue: nullString(dflt),
		PrimaryKey:   colKey == "PRI",
	}, nil
}
