package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shakram02/go-mcp-sql-db/internal/dispatch"
	"github.com/shakram02/go-mcp-sql-db/internal/metrics"
	"github.com/shakram02/go-mcp-sql-db/internal/resource"
)

const implementationName = "mcp-sql-db"

type Config struct {
	Logger     *slog.Logger
	Dispatcher *dispatch.Dispatcher
	Resources  *resource.Resolver
	Version    string

	// QueryTimeout bounds each tool call. Zero disables the bound.
	QueryTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if cfg.Resources == nil {
		return fmt.Errorf("resource resolver is required")
	}
	if cfg.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	return nil
}

// Server exposes dispatcher operations as MCP tools and table schemas as MCP
// resources over stdio.
type Server struct {
	log *slog.Logger
	cfg Config
	mcp *mcp.Server

	registeredResources   map[string]struct{}
	registeredResourcesMu sync.Mutex
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    implementationName,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		mcp: mcpServer,

		registeredResources: make(map[string]struct{}),
	}

	for _, op := range cfg.Dispatcher.ListOperations() {
		mcpServer.AddTool(&mcp.Tool{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema,
			Annotations: toolAnnotations(op),
		}, s.toolHandler(op))
	}

	// Resource listings reflect the live table set, so refresh before each one.
	mcpServer.AddReceivingMiddleware(func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method == "resources/list" {
				if err := s.syncResources(ctx); err != nil {
					s.log.Error("server: failed to sync resources", "error", err)
				}
			}
			return next(ctx, method, req)
		}
	})

	return s, nil
}

func toolAnnotations(op dispatch.Descriptor) *mcp.ToolAnnotations {
	readOnly := !op.Mutates && !op.Destructive
	ann := &mcp.ToolAnnotations{ReadOnlyHint: readOnly}
	if !readOnly {
		destructive := op.Destructive
		ann.DestructiveHint = &destructive
	}
	return ann
}

func (s *Server) toolHandler(op dispatch.Descriptor) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		return s.callTool(ctx, op, raw), nil
	}
}

// callTool decodes the raw arguments, dispatches the operation and renders the
// response envelope as JSON text content.
func (s *Server) callTool(ctx context.Context, op dispatch.Descriptor, raw json.RawMessage) *mcp.CallToolResult {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			s.log.Warn("server: undecodable tool arguments", "tool", op.Name, "error", err)
			return errorResult(fmt.Sprintf("%s: invalid arguments: %v", op.Name, err))
		}
	}

	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	resp := s.cfg.Dispatcher.Dispatch(ctx, op.Name, args)
	if resp.OK && op.Mutates {
		if err := s.syncResources(ctx); err != nil {
			s.log.Error("server: failed to sync resources", "tool", op.Name, "error", err)
		}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("server: failed to encode tool response", "tool", op.Name, "error", err)
		return errorResult(fmt.Sprintf("%s: failed to encode response: %v", op.Name, err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		IsError: !resp.OK,
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// syncResources registers a schema resource for every current table and
// removes resources whose table no longer exists.
func (s *Server) syncResources(ctx context.Context) error {
	resources, err := s.cfg.Resources.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate resources: %w", err)
	}

	s.registeredResourcesMu.Lock()
	defer s.registeredResourcesMu.Unlock()

	current := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		current[r.URI] = struct{}{}
		if _, ok := s.registeredResources[r.URI]; ok {
			continue
		}
		s.log.Debug("server: registering schema resource", "uri", r.URI)
		s.mcp.AddResource(&mcp.Resource{
			URI:      r.URI,
			Name:     r.Name,
			MIMEType: r.MIMEType,
		}, s.readResource)
		s.registeredResources[r.URI] = struct{}{}
	}

	var stale []string
	for uri := range s.registeredResources {
		if _, ok := current[uri]; !ok {
			stale = append(stale, uri)
			delete(s.registeredResources, uri)
		}
	}
	if len(stale) > 0 {
		s.log.Debug("server: unregistering schema resources", "uris", stale)
		s.mcp.RemoveResources(stale...)
	}
	return nil
}

func (s *Server) readResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	body, err := s.resourceBody(ctx, uri)
	if err != nil {
		metrics.ResourceReadsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, resource.ErrInvalidIdentifier) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return nil, err
	}
	metrics.ResourceReadsTotal.WithLabelValues("success").Inc()
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: resource.MIMEType,
			Text:     string(body),
		}},
	}, nil
}

func (s *Server) resourceBody(ctx context.Context, uri string) ([]byte, error) {
	cols, err := s.cfg.Resources.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema resource: %w", err)
	}
	return body, nil
}

// Run serves MCP over stdin/stdout until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.syncResources(ctx); err != nil {
		s.log.Error("server: failed to sync resources", "error", err)
	}

	s.log.Info("server: mcp stdio serving",
		"version", s.cfg.Version,
		"operations", len(s.cfg.Dispatcher.ListOperations()),
	)
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to run mcp server: %w", err)
	}
	s.log.Info("server: stopped")
	return nil
}
