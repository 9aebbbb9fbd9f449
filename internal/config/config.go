package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Engine selects which relational engine the server connects to.
type Engine string

const (
	EngineSQLite    Engine = "sqlite"
	EnginePostgres  Engine = "postgres"
	EngineMySQL     Engine = "mysql"
	EngineSQLServer Engine = "sqlserver"
)

// NormalizeEngine trims and lowercases an engine name.
func NormalizeEngine(name string) Engine {
	return Engine(strings.ToLower(strings.TrimSpace(name)))
}

// Defaults, overridable via MCP_MAX_ROWS and MCP_QUERY_TIMEOUT.
const (
	DefaultMaxRows      = 10000
	DefaultQueryTimeout = 30 * time.Second
	DefaultSSLMode      = "prefer"
)

// Config holds the startup configuration consumed by cmd/mcp-sql-db.
type Config struct {
	Engine Engine

	// Path is the database file for the embedded engine.
	Path string

	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string

	// BlockedCommands is the raw comma-separated keyword list.
	BlockedCommands string

	MaxRows      int
	QueryTimeout time.Duration
}

// FromEnv builds a Config from MCP_* environment variables, applying defaults
// for anything unset.
func FromEnv() (Config, error) {
	cfg := Config{
		Engine:          NormalizeEngine(os.Getenv("MCP_DB_ENGINE")),
		Path:            os.Getenv("MCP_SQLITE_PATH"),
		Host:            os.Getenv("MCP_DB_HOST"),
		Port:            os.Getenv("MCP_DB_PORT"),
		Database:        os.Getenv("MCP_DB_NAME"),
		User:            os.Getenv("MCP_DB_USER"),
		Password:        os.Getenv("MCP_DB_PASSWORD"),
		SSLMode:         os.Getenv("MCP_PG_SSLMODE"),
		BlockedCommands: os.Getenv("MCP_BLOCKED_COMMANDS"),
		MaxRows:         DefaultMaxRows,
		QueryTimeout:    DefaultQueryTimeout,
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineSQLite
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = DefaultSSLMode
	}

	if v := os.Getenv("MCP_MAX_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MCP_MAX_ROWS %q: must be a positive integer", v)
		}
		cfg.MaxRows = n
	}
	if v := os.Getenv("MCP_QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid MCP_QUERY_TIMEOUT %q: must be a positive duration", v)
		}
		cfg.QueryTimeout = d
	}
	return cfg, nil
}

// Validate reports every missing parameter for the selected engine at once.
func (c *Config) Validate() error {
	var missing []string
	switch c.Engine {
	case EngineSQLite:
		if c.Path == "" {
			missing = append(missing, "MCP_SQLITE_PATH")
		}
	case EnginePostgres, EngineMySQL, EngineSQLServer:
		if c.Host == "" {
			missing = append(missing, "MCP_DB_HOST")
		}
		if c.Database == "" {
			missing = append(missing, "MCP_DB_NAME")
		}
	default:
		return fmt.Errorf("unsupported engine %q: expected one of sqlite, postgres, mysql, sqlserver", c.Engine)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration for %s: %v", c.Engine, missing)
	}
	if c.Port != "" {
		if _, err := strconv.Atoi(c.Port); err != nil {
			return fmt.Errorf("invalid port %q", c.Port)
		}
	}
	if c.MaxRows <= 0 {
		return fmt.Errorf("max rows must be positive")
	}
	return nil
}

// PortOrDefault returns the configured port, or the engine's well-known port.
func (c *Config) PortOrDefault() string {
	if c.Port != "" {
		return c.Port
	}
	switch c.Engine {
	case EnginePostgres:
		return "5432"
	case EngineMySQL:
		return "3306"
	case EngineSQLServer:
		return "1433"
	}
	return ""
}
