// Package resource maps user tables to schema resource URIs of the form
// <scheme>:///<locator>/<table>/schema and resolves them back to column
// metadata.
package resource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shakram02/go-mcp-sql-db/internal/database"
)

const (
	// SchemaPath is the only sub-resource a table exposes.
	SchemaPath = "schema"
	MIMEType   = "application/json"
)

// ErrInvalidIdentifier is returned for URIs this resolver did not produce.
var ErrInvalidIdentifier = errors.New("invalid resource URI")

// Catalog is the subset of *database.DB the resolver needs.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]database.Column, error)
}

// Resource is one browsable table schema.
type Resource struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

// Identifier is a parsed resource URI.
type Identifier struct {
	Scheme  string
	Locator string
	Table   string
	Sub     string
}

// SchemaColumn is the body element of a read schema resource.
type SchemaColumn struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
}

// Resolver builds and resolves resource URIs for one connection.
type Resolver struct {
	scheme  string
	locator string
	catalog Catalog
}

func NewResolver(scheme, locator string, catalog Catalog) *Resolver {
	return &Resolver{scheme: scheme, locator: locator, catalog: catalog}
}

// URI returns the schema resource URI for a table. Every locator segment and
// the table name are path-escaped.
func (r *Resolver) URI(table string) string {
	return fmt.Sprintf("%s:///%s/%s/%s", r.scheme, escapeLocator(r.locator), url.PathEscape(table), SchemaPath)
}

func escapeLocator(locator string) string {
	segments := strings.Split(locator, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func unescapeLocator(locator string) (string, error) {
	segments := strings.Split(locator, "/")
	for i, seg := range segments {
		s, err := url.PathUnescape(seg)
		if err != nil {
			return "", err
		}
		segments[i] = s
	}
	return strings.Join(segments, "/"), nil
}

// Parse splits a resource URI into its parts. The last two path segments are
// the table and sub-resource; everything before them is the locator.
func (r *Resolver) Parse(uri string) (Identifier, error) {
	scheme, rest, ok := strings.Cut(uri, ":///")
	if !ok || scheme == "" {
		return Identifier{}, fmt.Errorf("%w: %q: expected %s:///<locator>/<table>/%s", ErrInvalidIdentifier, uri, r.scheme, SchemaPath)
	}

	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		return Identifier{}, fmt.Errorf("%w: %q: missing table segment", ErrInvalidIdentifier, uri)
	}
	sub := rest[idx+1:]
	rest = rest[:idx]

	idx = strings.LastIndex(rest, "/")
	if idx < 0 {
		return Identifier{}, fmt.Errorf("%w: %q: missing locator segment", ErrInvalidIdentifier, uri)
	}
	table, err := url.PathUnescape(rest[idx+1:])
	if err != nil || table == "" {
		return Identifier{}, fmt.Errorf("%w: %q: bad table segment", ErrInvalidIdentifier, uri)
	}
	locator, err := unescapeLocator(rest[:idx])
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %q: bad locator", ErrInvalidIdentifier, uri)
	}

	return Identifier{
		Scheme:  scheme,
		Locator: locator,
		Table:   table,
		Sub:     sub,
	}, nil
}

// Enumerate lists one schema resource per user table.
func (r *Resolver) Enumerate(ctx context.Context) ([]Resource, error) {
	tables, err := r.catalog.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}
	resources := make([]Resource, 0, len(tables))
	for _, table := range tables {
		resources = append(resources, Resource{
			URI:      r.URI(table),
			Name:     fmt.Sprintf("%q database schema", table),
			MIMEType: MIMEType,
		})
	}
	return resources, nil
}

// Resolve returns the columns of the table a URI addresses. The URI must
// carry this connection's scheme and locator and end in /schema.
func (r *Resolver) Resolve(ctx context.Context, uri string) ([]SchemaColumn, error) {
	id, err := r.Parse(uri)
	if err != nil {
		return nil, err
	}
	if id.Sub != SchemaPath {
		return nil, fmt.Errorf("%w: %q: sub-resource must be %q", ErrInvalidIdentifier, uri, SchemaPath)
	}
	if id.Scheme != r.scheme || id.Locator != r.locator {
		return nil, fmt.Errorf("%w: %q does not belong to this database", ErrInvalidIdentifier, uri)
	}

	columns, err := r.catalog.Columns(ctx, id.Table)
	if err != nil {
		return nil, fmt.Errorf("error reading resource: %w", err)
	}
	out := make([]SchemaColumn, 0, len(columns))
	for _, col := range columns {
		out = append(out, SchemaColumn{ColumnName: col.Name, DataType: col.Type})
	}
	return out, nil
}
