package resource

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
	"github.com/shakram02/go-mcp-sql-db/internal/database"
)

func testDB(t *testing.T) (*database.DB, config.Config) {
	t.Helper()
	cfg := config.Config{Engine: config.EngineSQLite, Path: filepath.Join(t.TempDir(), "res.db")}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := database.Open(t.Context(), log, &database.SQLiteDialect{}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, cfg
}

func TestResolver_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db, cfg := testDB(t)

	require.NoError(t, db.ExecuteScript(ctx, `
		CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);
		CREATE TABLE "order items" (id INTEGER, qty INTEGER);
		CREATE TABLE "a/b" (x TEXT);
	`))

	r := NewResolver("sqlite", db.Locator(), db)
	resources, err := r.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 3)

	names := map[string]bool{}
	for _, res := range resources {
		require.Equal(t, MIMEType, res.MIMEType)

		id, err := r.Parse(res.URI)
		require.NoError(t, err)
		require.Equal(t, cfg.Path, id.Locator)
		require.Equal(t, SchemaPath, id.Sub)
		require.Equal(t, `"`+id.Table+`" database schema`, res.Name)
		names[id.Table] = true

		cols, err := r.Resolve(ctx, res.URI)
		require.NoError(t, err)
		require.NotEmpty(t, cols)
	}
	require.Equal(t, map[string]bool{"users": true, "order items": true, "a/b": true}, names)

	cols, err := r.Resolve(ctx, r.URI("users"))
	require.NoError(t, err)
	require.Equal(t, []SchemaColumn{
		{ColumnName: "id", DataType: "INTEGER"},
		{ColumnName: "email", DataType: "TEXT"},
	}, cols)
}

func TestResolver_URIFormat(t *testing.T) {
	t.Parallel()

	r := NewResolver("sqlite", "/tmp/app.db", nil)
	require.Equal(t, "sqlite:////tmp/app.db/users/schema", r.URI("users"))

	r = NewResolver("postgres", "db:5432/app", nil)
	uri := r.URI("line items")
	require.Equal(t, "postgres:///db:5432/app/line%20items/schema", uri)

	id, err := r.Parse(uri)
	require.NoError(t, err)
	require.Equal(t, Identifier{Scheme: "postgres", Locator: "db:5432/app", Table: "line items", Sub: "schema"}, id)
}

func TestResolver_LocatorEscaping(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	dir := filepath.Join(t.TempDir(), "100%zz dir #1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	cfg := config.Config{Engine: config.EngineSQLite, Path: filepath.Join(dir, "a.db")}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := database.Open(ctx, log, &database.SQLiteDialect{}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ExecuteScript(ctx, "CREATE TABLE t (id INTEGER)"))

	r := NewResolver("sqlite", db.Locator(), db)
	uri := r.URI("t")
	require.Contains(t, uri, "/100%25zz%20dir%20%231/a.db/t/schema")

	parsed, err := url.Parse(uri)
	require.NoError(t, err)
	require.Empty(t, parsed.Fragment)

	id, err := r.Parse(uri)
	require.NoError(t, err)
	require.Equal(t, cfg.Path, id.Locator)
	require.Equal(t, "t", id.Table)

	cols, err := r.Resolve(ctx, uri)
	require.NoError(t, err)
	require.Equal(t, []SchemaColumn{{ColumnName: "id", DataType: "INTEGER"}}, cols)

	_, err = r.Parse("sqlite:///tmp/100%zz/a.db/t/schema")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestResolver_InvalidIdentifiers(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db, _ := testDB(t)
	require.NoError(t, db.ExecuteScript(ctx, `CREATE TABLE users (id INTEGER)`))
	r := NewResolver("sqlite", db.Locator(), db)

	invalid := []string{
		"",
		"users",
		"sqlite://" + db.Locator() + "/users/schema",
		"sqlite:///users",
		"sqlite:///" + db.Locator() + "/users/data",
		"sqlite:///" + db.Locator() + "/users/schema/extra",
		"postgres:///" + db.Locator() + "/users/schema",
		"sqlite:///other.db/users/schema",
		"sqlite:///" + db.Locator() + "//schema",
	}
	for _, uri := range invalid {
		t.Run(uri, func(t *testing.T) {
			_, err := r.Resolve(ctx, uri)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidIdentifier), "got %v", err)
		})
	}
}

type failingCatalog struct{}

func (failingCatalog) ListTables(context.Context) ([]string, error) {
	return nil, errors.New("database error")
}

func (failingCatalog) Columns(context.Context, string) ([]database.Column, error) {
	return nil, errors.New("database error")
}

func TestResolver_CatalogErrors(t *testing.T) {
	t.Parallel()
	r := NewResolver("sqlite", "x.db", failingCatalog{})

	_, err := r.Enumerate(t.Context())
	require.ErrorContains(t, err, "error listing resources")

	_, err = r.Resolve(t.Context(), r.URI("t"))
	require.ErrorContains(t, err, "error reading resource")
	require.False(t, errors.Is(err, ErrInvalidIdentifier))
}
