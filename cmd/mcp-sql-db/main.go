package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/shakram02/go-mcp-sql-db/internal/config"
	"github.com/shakram02/go-mcp-sql-db/internal/database"
	"github.com/shakram02/go-mcp-sql-db/internal/dispatch"
	"github.com/shakram02/go-mcp-sql-db/internal/metrics"
	"github.com/shakram02/go-mcp-sql-db/internal/policy"
	"github.com/shakram02/go-mcp-sql-db/internal/resource"
	"github.com/shakram02/go-mcp-sql-db/internal/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultEnvFile = ".env"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	envFile     string
	metricsAddr string
	verbose     bool

	flags *flag.FlagSet

	engine          string
	sqlitePath      string
	host            string
	port            int
	database        string
	user            string
	password        string
	sslMode         string
	blockedCommands string
	maxRows         int
	queryTimeout    time.Duration
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	flags := flag.NewFlagSet("mcp-sql-db", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&o.envFile, "env-file", defaultEnvFile, "dotenv file to load before reading MCP_* variables (missing file is ignored)")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (disabled when empty)")
	flags.BoolVar(&o.verbose, "verbose", false, "enable verbose (debug) logging")

	flags.StringVar(&o.engine, "engine", "", "database engine: sqlite, postgres, mysql, sqlserver (env MCP_DB_ENGINE)")
	flags.StringVar(&o.sqlitePath, "sqlite-path", "", "sqlite database file (env MCP_SQLITE_PATH, or first positional argument)")
	flags.StringVar(&o.host, "host", "", "database host (env MCP_DB_HOST)")
	flags.IntVar(&o.port, "port", 0, "database port (env MCP_DB_PORT)")
	flags.StringVar(&o.database, "database", "", "database name (env MCP_DB_NAME)")
	flags.StringVar(&o.user, "user", "", "database user (env MCP_DB_USER)")
	flags.StringVar(&o.password, "password", "", "database password (env MCP_DB_PASSWORD)")
	flags.StringVar(&o.sslMode, "sslmode", "", "postgres sslmode (env MCP_PG_SSLMODE)")
	flags.StringVar(&o.blockedCommands, "blocked-commands", "", "comma-separated SQL keywords to reject (env MCP_BLOCKED_COMMANDS)")
	flags.IntVar(&o.maxRows, "max-rows", 0, "maximum rows returned per query (env MCP_MAX_ROWS)")
	flags.DurationVar(&o.queryTimeout, "query-timeout", 0, "per-call timeout (env MCP_QUERY_TIMEOUT)")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	if flags.NArg() > 1 {
		return nil, fmt.Errorf("expected at most one positional argument, got %d", flags.NArg())
	}
	if flags.NArg() == 1 && !flags.Changed("sqlite-path") {
		o.sqlitePath = flags.Arg(0)
		if err := flags.Set("sqlite-path", o.sqlitePath); err != nil {
			return nil, err
		}
	}
	o.flags = flags
	return o, nil
}

// apply overrides cfg with every flag set on the command line.
func (o *options) apply(cfg *config.Config) {
	changed := o.flags.Changed
	if changed("engine") {
		cfg.Engine = config.NormalizeEngine(o.engine)
	}
	if changed("sqlite-path") {
		cfg.Path = o.sqlitePath
	}
	if changed("host") {
		cfg.Host = o.host
	}
	if changed("port") {
		cfg.Port = strconv.Itoa(o.port)
	}
	if changed("database") {
		cfg.Database = o.database
	}
	if changed("user") {
		cfg.User = o.user
	}
	if changed("password") {
		cfg.Password = o.password
	}
	if changed("sslmode") {
		cfg.SSLMode = o.sslMode
	}
	if changed("blocked-commands") {
		cfg.BlockedCommands = o.blockedCommands
	}
	if changed("max-rows") {
		cfg.MaxRows = o.maxRows
	}
	if changed("query-timeout") {
		cfg.QueryTimeout = o.queryTimeout
	}
}

// loadConfig resolves configuration from the dotenv file, the environment and
// flags, in increasing order of precedence.
func loadConfig(o *options) (config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := newLogger(opts.verbose)

	metricsServerErrCh := make(chan error, 1)
	if opts.metricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date, string(cfg.Engine)).Set(1)
		go func() {
			listener, err := net.Listen("tcp", opts.metricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	dialect, err := database.DialectFor(cfg.Engine)
	if err != nil {
		return err
	}
	db, err := database.Open(ctx, log, dialect, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pol := policy.New(policy.ParseBlockedCommands(cfg.BlockedCommands))
	if blocked := pol.Blocked(); len(blocked) > 0 {
		log.Info("blocked commands configured", "keywords", blocked)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Logger:  log,
		Backend: db,
		Policy:  pol,
		MaxRows: cfg.MaxRows,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:       log,
		Dispatcher:   dispatcher,
		Resources:    resource.NewResolver(dialect.URIScheme(), db.Locator(), db),
		Version:      version,
		QueryTimeout: cfg.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-metricsServerErrCh:
		return err
	}
}

// newLogger writes to stderr; stdout carries the MCP protocol.
func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   logLevel,
		NoColor: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(t.Format("2006-01-02T15:04:05.000Z07:00"))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}
