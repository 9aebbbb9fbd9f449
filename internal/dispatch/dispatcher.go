package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
	"github.com/shakram02/go-mcp-sql-db/internal/database"
	"github.com/shakram02/go-mcp-sql-db/internal/metrics"
	"github.com/shakram02/go-mcp-sql-db/internal/policy"
)

// Backend is the database contract handlers execute against. *database.DB
// implements it.
type Backend interface {
	QueryAll(ctx context.Context, query string, args ...any) (database.RowSet, error)
	Execute(ctx context.Context, query string, args ...any) (database.ExecResult, error)
	ExecuteScript(ctx context.Context, script string) error
	ListTables(ctx context.Context) ([]string, error)
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string) ([]database.Column, error)
	QuoteIdent(name string) string
}

type Config struct {
	Logger  *slog.Logger
	Backend Backend
	Policy  *policy.Policy

	// MaxRows caps rows returned by read_query and export_query.
	MaxRows int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if cfg.MaxRows < 0 {
		return fmt.Errorf("max rows must not be negative")
	}
	return nil
}

// Operation is one registered capability.
type Operation struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema

	// Verb is the required statement prefix for the "query" argument.
	Verb string
	// Guarded operations run caller SQL through the blocked-command policy.
	Guarded bool
	// Destructive operations only execute with confirm=true.
	Destructive bool
	// Mutates is set when a successful call may change the set of tables.
	Mutates bool

	handler  handlerFunc
	resolved *jsonschema.Resolved
}

// Descriptor is the capability-discovery view of an Operation.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
	Destructive bool               `json:"destructive,omitempty"`
	Mutates     bool               `json:"-"`
}

type handlerFunc func(ctx context.Context, d *Dispatcher, args arguments) (any, error)

// Dispatcher validates and executes named operations. Calls are serialized:
// at most one statement is in flight at a time.
type Dispatcher struct {
	log     *slog.Logger
	backend Backend
	policy  *policy.Policy
	maxRows int

	ops   map[string]*Operation
	order []string

	mu sync.Mutex
}

func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate dispatcher config: %w", err)
	}
	maxRows := cfg.MaxRows
	if maxRows == 0 {
		maxRows = config.DefaultMaxRows
	}
	pol := cfg.Policy
	if pol == nil {
		pol = policy.New(nil)
	}

	d := &Dispatcher{
		log:     cfg.Logger,
		backend: cfg.Backend,
		policy:  pol,
		maxRows: maxRows,
		ops:     make(map[string]*Operation),
	}
	for _, op := range operations() {
		if err := d.register(op); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispatcher) register(op *Operation) error {
	if _, ok := d.ops[op.Name]; ok {
		return fmt.Errorf("duplicate operation %q", op.Name)
	}
	resolved, err := op.InputSchema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("failed to resolve input schema for %s: %w", op.Name, err)
	}
	op.resolved = resolved
	d.ops[op.Name] = op
	d.order = append(d.order, op.Name)
	return nil
}

// ListOperations describes every registered operation in registration order.
func (d *Dispatcher) ListOperations() []Descriptor {
	out := make([]Descriptor, 0, len(d.order))
	for _, name := range d.order {
		op := d.ops[name]
		out = append(out, Descriptor{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema,
			Destructive: op.Destructive,
			Mutates:     op.Mutates,
		})
	}
	return out
}

// Dispatch runs the named operation. It never returns nil and never panics on
// caller input; every failure is reported in the envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) *Response {
	start := time.Now()
	resp := d.dispatch(ctx, name, args)

	label := name
	if _, ok := d.ops[name]; !ok {
		label = "unknown"
	}
	status := "success"
	if !resp.OK {
		status = string(resp.Error.Kind)
		d.log.Warn("dispatch: operation failed", "operation", name, "kind", resp.Error.Kind, "error", resp.Error.Message)
	} else {
		d.log.Debug("dispatch: operation succeeded", "operation", name, "duration", time.Since(start))
	}
	metrics.OperationCallsTotal.WithLabelValues(label, status).Inc()
	metrics.OperationDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, args map[string]any) *Response {
	op, ok := d.ops[name]
	if !ok {
		return failure(newError(KindUnknownOperation, name, fmt.Errorf("unknown operation: %s", name)))
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := op.resolved.Validate(args); err != nil {
		return failure(newError(KindInvalidArguments, name, fmt.Errorf("invalid arguments: %v", err)))
	}

	if op.Verb != "" || op.Guarded {
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return failure(newError(KindInvalidArguments, name, fmt.Errorf("invalid arguments: query must not be blank")))
		}
		if op.Guarded {
			if err := d.policy.Check(query); err != nil {
				var be *policy.BlockedError
				if errors.As(err, &be) {
					metrics.BlockedStatementsTotal.WithLabelValues(be.Keyword).Inc()
				}
				return failure(newError(KindBlockedCommand, name, err))
			}
		}
		if op.Verb != "" && !policy.HasStatementPrefix(query, op.Verb) {
			return failure(newError(KindStatementKindMismatch, name, fmt.Errorf("only %s statements are allowed", op.Verb)))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debug("dispatch: handling operation", "operation", name)
	result, err := op.handler(ctx, d, arguments(args))
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			return failure(de)
		}
		return failure(newError(KindQueryError, name, err))
	}
	return success(name, result)
}

// arguments is a validated argument object.
type arguments map[string]any

func (a arguments) str(key string) string {
	s, _ := a[key].(string)
	return s
}

func (a arguments) boolean(key string) bool {
	b, _ := a[key].(bool)
	return b
}
