package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
)

func TestDialectFor(t *testing.T) {
	t.Parallel()

	for _, engine := range []config.Engine{config.EngineSQLite, config.EnginePostgres, config.EngineMySQL, config.EngineSQLServer} {
		d, err := DialectFor(engine)
		require.NoError(t, err)
		require.Equal(t, engine, d.Engine())
		require.Equal(t, string(engine), d.URIScheme())
	}

	_, err := DialectFor("oracle")
	require.ErrorContains(t, err, "unsupported engine")
}

func TestDialect_QuoteIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dialect  Dialect
		input    string
		expected string
	}{
		{&SQLiteDialect{}, `users`, `"users"`},
		{&SQLiteDialect{}, `we"ird`, `"we""ird"`},
		{&PostgresDialect{}, `Users`, `"Users"`},
		{&MySQLDialect{}, "ord`ers", "`ord``ers`"},
		{&SQLServerDialect{}, "order]s", "[order]]s]"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, tc.dialect.QuoteIdent(tc.input))
	}
}

func TestDialect_DSN(t *testing.T) {
	t.Parallel()

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		d := &SQLiteDialect{}
		dsn, err := d.DSN(config.Config{Path: "/data/app.db"})
		require.NoError(t, err)
		require.Equal(t, "/data/app.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dsn)

		dsn, err = d.DSN(config.Config{Path: "/data/app.db?mode=ro"})
		require.NoError(t, err)
		require.Equal(t, "/data/app.db?mode=ro", dsn)
		require.Equal(t, "/data/app.db", d.Locator(config.Config{Path: "/data/app.db?mode=ro"}))

		_, err = d.DSN(config.Config{})
		require.Error(t, err)
	})

	t.Run("postgres", func(t *testing.T) {
		t.Parallel()
		d := &PostgresDialect{}
		cfg := config.Config{Engine: config.EnginePostgres, Host: "db", Database: "app", User: "u", Password: "p@ss", SSLMode: "disable"}
		dsn, err := d.DSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "postgres://u:p%40ss@db:5432/app?sslmode=disable", dsn)
		require.Equal(t, "db:5432/app", d.Locator(cfg))

		dsn, err = d.DSN(config.Config{Engine: config.EnginePostgres, Host: "db", Database: "app", Port: "6000"})
		require.NoError(t, err)
		require.Equal(t, "postgres://db:6000/app?sslmode=prefer", dsn)
	})

	t.Run("mysql", func(t *testing.T) {
		t.Parallel()
		d := &MySQLDialect{}
		cfg := config.Config{Engine: config.EngineMySQL, Host: "db", Database: "shop", User: "root", Password: "secret"}
		dsn, err := d.DSN(cfg)
		require.NoError(t, err)
		require.Contains(t, dsn, "root:secret@tcp(db:3306)/shop")
		require.Contains(t, dsn, "multiStatements=true")
		require.Equal(t, "db:3306/shop", d.Locator(cfg))
	})

	t.Run("sqlserver", func(t *testing.T) {
		t.Parallel()
		d := &SQLServerDialect{}
		cfg := config.Config{Engine: config.EngineSQLServer, Host: "db", Database: "crm", User: "sa", Password: "pw"}
		dsn, err := d.DSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "sqlserver://sa:pw@db:1433?database=crm", dsn)

		_, err = d.DSN(config.Config{Engine: config.EngineSQLServer, Host: "db"})
		require.Error(t, err)
	})
}
