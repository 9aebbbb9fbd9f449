package dispatch

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/shakram02/go-mcp-sql-db/internal/database"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ExportResult is the payload of export_query.
type ExportResult struct {
	Format  string `json:"format"`
	Content any    `json:"content"`
}

func operations() []*Operation {
	return []*Operation{
		{
			Name:        "read_query",
			Description: "Execute a query that returns rows (e.g. SELECT) and return the rows as JSON objects",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"query": stringProp("The SQL query to execute"),
			}, "query"),
			Guarded: true,
			handler: readQuery,
		},
		{
			Name:        "write_query",
			Description: "Execute an INSERT, UPDATE, or DELETE statement and report the affected rows",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"query": stringProp("The SQL statement to execute"),
			}, "query"),
			Guarded: true,
			Mutates: true,
			handler: writeQuery,
		},
		{
			Name:        "create_table",
			Description: "Create a new table in the database",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"query": stringProp("CREATE TABLE SQL statement"),
			}, "query"),
			Verb:    "CREATE TABLE",
			Mutates: true,
			handler: createTable,
		},
		{
			Name:        "alter_table",
			Description: "Modify an existing table schema (add columns, rename tables, etc.)",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"query": stringProp("ALTER TABLE SQL statement"),
			}, "query"),
			Verb:    "ALTER TABLE",
			Mutates: true,
			handler: alterTable,
		},
		{
			Name:        "drop_table",
			Description: "Remove a table from the database. Requires confirm=true; without it nothing is dropped",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"table_name": stringProp("Name of the table to drop"),
				"confirm": {
					Type:        "boolean",
					Description: "Safety confirmation flag; must be true to drop the table",
				},
			}, "table_name"),
			Destructive: true,
			Mutates:     true,
			handler:     dropTable,
		},
		{
			Name:        "export_query",
			Description: "Export the result of a SELECT query as CSV or JSON",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"query": stringProp("SELECT SQL query to export"),
				"format": {
					Type:        "string",
					Description: "Export format",
					Enum:        []any{FormatCSV, FormatJSON},
				},
			}, "query", "format"),
			Verb:    "SELECT",
			Guarded: true,
			handler: exportQuery,
		},
		{
			Name:        "list_tables",
			Description: "List all user tables in the database",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{}),
			handler:     listTables,
		},
		{
			Name:        "describe_table",
			Description: "Get the column definitions of a table",
			InputSchema: objectSchema(map[string]*jsonschema.Schema{
				"table_name": stringProp("Name of the table to describe"),
			}, "table_name"),
			handler: describeTable,
		},
	}
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func stringProp(description string) *jsonschema.Schema {
	minLen := 1
	return &jsonschema.Schema{
		Type:        "string",
		Description: description,
		MinLength:   &minLen,
	}
}

func readQuery(ctx context.Context, d *Dispatcher, args arguments) (any, error) {
	set, err := d.backend.QueryAll(ctx, args.str("query"))
	if err != nil {
		return nil, err
	}
	return d.truncate(set.Rows), nil
}

func writeQuery(ctx context.Context, d *Dispatcher, args arguments) (any, error) {
	return d.backend.Execute(ctx, args.str("query"))
}

func createTable(ctx context.Context, d *Dispatcher, args arguments) (any, error) {
	if err := d.backend.ExecuteScript(ctx, args.str("query")); err != nil {
		return nil, err
	}
	return Status{Performed: true, Message: "Table created successfully"}, nil
}

func alterTable(ctx context.Context, d *Dispatcher, args arguments) (any, error) {
	if err := d.backend.ExecuteScript(ctx, args.str("query")); err != nil {
		return nil, err
	}
	return Status{Performed: true, Message: "Table altered successfully"}, nil
}

func dropTable(ctx context.Context, d *Dispatcher, args arguments) (any, error) {
	table := args.str("table_name")
	if err := d.requireTable(ctx, "drop_table", table); err != nil {
		return nil, err
	}
	if !args.boolean("confirm") {
		return Status{
			Performed: false,
			Message:   fmt.Sprintf("Safety confirmation required. Set confirm=true to proceed with dropping table '%s'.", table),
		}, nil
	}
	if err := d.backend.ExecuteScript(ctx, "DROP TABLE "+d.backend.QuoteIdent(table)); err != nil {
		return nil, err
	}
	d.log.Info("dispatch: table dropped", "table", table)
	return Status{Performed: true, Message: fmt.Sprintf("Table '%s' dropped successfully", table)}, nil
}

func listTables(ctx context.Context, d *Dispatcher, _ arguments) (any, error) {
	return d.backend.ListTables(ctx)
}

func describeTable(ctx context.Context, d *Dispatcher, args arguments) (any, error) {
	table := args.str("table_name")
	if err := d.requireTable(ctx, "describe_table", table); err != nil {
		return nil, err
	}
	return d.backend.Columns(ctx, table)
}

func exportQuery(ctx context.Context, d *Dispatcher, args arguments) (any, error) {
	set, err := d.backend.QueryAll(ctx, args.str("query"))
	if err != nil {
		return nil, err
	}
	format := args.str("format")
	if format == FormatJSON {
		return ExportResult{Format: FormatJSON, Content: d.truncate(set.Rows)}, nil
	}

	rows := set.Rows
	if len(rows) > d.maxRows {
		rows = rows[:d.maxRows]
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(set.Columns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(set.Columns))
	for _, row := range rows {
		for i, col := range set.Columns {
			record[i] = csvValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return ExportResult{Format: FormatCSV, Content: buf.String()}, nil
}

func csvValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}

// requireTable fails with ObjectNotFound unless the table exists.
func (d *Dispatcher) requireTable(ctx context.Context, op, table string) error {
	exists, err := d.backend.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return newError(KindObjectNotFound, op, fmt.Errorf("table '%s' does not exist", table))
	}
	return nil
}

// truncate caps rows at maxRows, appending a marker row when rows were cut.
func (d *Dispatcher) truncate(rows []database.Row) []database.Row {
	if len(rows) <= d.maxRows {
		return rows
	}
	out := append([]database.Row(nil), rows[:d.maxRows]...)
	return append(out, database.Row{
		"_warning": fmt.Sprintf("Result truncated at %d rows", d.maxRows),
	})
}
