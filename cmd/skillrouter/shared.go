package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/config"
	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/observability"
	"github.com/jkaninda/skillrouter/internal/router"
	"github.com/jkaninda/skillrouter/internal/storage"
	pgstore "github.com/jkaninda/skillrouter/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/skillrouter/internal/storage/sqlite"
)

// Invocation surfaces, used as the metrics and decision log label.
const (
	surfaceCLI  = "cli"
	surfaceHTTP = "http"
	surfaceWS   = "ws"
	surfaceMCP  = "mcp"
)

// App holds the components every command builds the same way. Built once
// by initApp, torn down by Cleanup.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Obs    *observability.Observability
	Store  storage.Store // nil = decision log disabled.

	FS      *catalog.FSProvider
	Watcher *catalog.Watcher // nil unless the command watches the catalog.
	Sources *catalog.MultiProvider // File and database skills, without bridges.
	Catalog *catalog.MultiProvider // Sources plus command bridges; what the router ranks.
	Router  *router.Router

	cleanups []func()
}

// appOptions selects the long-running parts a command needs.
type appOptions struct {
	watch bool // Cache the FS catalog behind a Watcher (caller runs it).
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (a *App) Cleanup() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

func (a *App) addCleanup(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

// loadConfig resolves the config path from the flag or SKILLROUTER_CONFIG,
// falling back to defaults when the file is missing.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("SKILLROUTER_CONFIG", configPath)
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// clean for JSON output and the MCP stdio transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// setup loads config and builds the App. Callers must call app.Cleanup().
func setup(opts appOptions) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return initApp(context.Background(), cfg, newLogger(cfg.LogLevel), opts)
}

// initApp performs all common initialization.
func initApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	app.Obs = obs
	app.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})

	// Keyword tables.
	tables := router.DefaultTables()
	if cfg.Catalog.KeywordsFile != "" {
		tables, err = router.LoadTables(cfg.Catalog.KeywordsFile)
		if err != nil {
			app.Cleanup()
			return nil, fmt.Errorf("loading keyword tables: %w", err)
		}
	}
	logger.Debug("keyword tables loaded", slog.Any("stats", tables.Stats()))

	// Storage (optional).
	if cfg.Storage != nil {
		store, err := initStore(cfg, logger)
		if err != nil {
			app.Cleanup()
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		app.Store = store
		app.addCleanup(func() {
			if err := store.Close(); err != nil {
				logger.Error("closing store", slog.String("error", err.Error()))
			}
		})
		if err := store.Migrate(ctx); err != nil {
			app.Cleanup()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	// Catalog: files first, then database skills, then command bridges.
	// A name found earlier hides the same name later.
	app.FS = catalog.NewFSProvider(cfg.Catalog.SkillsDirs, cfg.Catalog.Patterns, logger)
	var fsCatalog router.CatalogProvider = app.FS
	if opts.watch && cfg.Catalog.PollInterval() > 0 {
		metrics := obs.MetricsOrNil()
		var w *catalog.Watcher
		w = catalog.NewWatcher(app.FS, cfg.Catalog.PollInterval(), func(defs []catalog.Definition) {
			loadErrors := 0
			if res := w.LastResult(); res != nil {
				loadErrors = len(res.Errors)
			}
			metrics.RecordCatalogReload(len(defs), loadErrors)
		}, logger)
		app.Watcher = w
		fsCatalog = w
	}

	providers := []router.CatalogProvider{fsCatalog}
	if app.Store != nil && cfg.Catalog.SeedDatabase {
		if err := seedSkills(ctx, app); err != nil {
			app.Cleanup()
			return nil, err
		}
	}
	if app.Store != nil && cfg.Catalog.UseDatabase {
		providers = append(providers, app.Store.Skills())
	}
	app.Sources = catalog.NewMultiProvider(providers...)
	if cfg.Catalog.CommandBridges() {
		providers = append(providers, catalog.NewStaticProvider(catalog.CommandBridges()...))
	}
	app.Catalog = catalog.NewMultiProvider(providers...)

	app.Router = router.New(app.Catalog,
		router.WithTables(tables),
		router.WithThresholds(cfg.Routing.Thresholds()),
		router.WithLogger(logger),
	)

	logger.Debug("router initialized",
		slog.Any("skills_dirs", cfg.Catalog.SkillsDirs),
		slog.Bool("watch", app.Watcher != nil),
		slog.Bool("database_catalog", app.Store != nil && cfg.Catalog.UseDatabase),
		slog.Bool("decision_log", app.Store != nil),
	)
	return app, nil
}

// seedSkills copies the file-based catalog into the database catalog.
func seedSkills(ctx context.Context, app *App) error {
	defs, _, err := app.FS.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading skills for seeding: %w", err)
	}
	res := catalog.Seed(ctx, app.Store.Skills(), defs, false, app.Logger)
	app.Logger.Info("skill catalog seeded",
		slog.Int("seeded", res.Seeded),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return nil
}

// RouterFor returns the router as seen by one invocation surface: the
// decision log records its calls and observability labels them.
func (a *App) RouterFor(surface string) gateway.Router {
	var r observability.Router = a.Router
	if a.Store != nil {
		r = storage.NewRecordingRouter(r, a.Store.Decisions(), surface, a.Logger, a.Obs.MetricsOrNil().RecordDecision)
	}
	return a.Obs.WrapRouter(r, surface)
}

// Health reports the state of the file and database catalog. Command
// bridges are always present, so they would mask an unreadable skills
// directory and are left out.
func (a *App) Health(ctx context.Context) catalog.HealthReport {
	return catalog.Health(ctx, a.Sources, a.Config.Catalog.SkillsDirs)
}

func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	driver := cfg.Storage.StorageDriver()

	switch driver {
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	dbPath := cfg.SQLitePath()
	journalMode := "wal"
	if cfg.Storage.SQLite != nil && cfg.Storage.SQLite.JournalMode != "" {
		journalMode = cfg.Storage.SQLite.JournalMode
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := sqlitestore.Open(sqlitestore.Config{
		Path:        dbPath,
		JournalMode: journalMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	return store, nil
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	pg := cfg.Storage.Postgres
	pgCfg := pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
	}

	pgDB, err := pgstore.Open(pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return pgstore.NewStore(pgDB), nil
}
