// Package app wires configured sources, storage and the query engine into a
// single process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arkilian/metaquery/internal/config"
	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/observability"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/internal/query/executor"
	"github.com/arkilian/metaquery/internal/query/filter"
	"github.com/arkilian/metaquery/internal/source"
	"github.com/arkilian/metaquery/internal/source/file"
	"github.com/arkilian/metaquery/internal/source/memory"
	"github.com/arkilian/metaquery/internal/source/sqldb"
	"github.com/arkilian/metaquery/internal/storage"
	"github.com/arkilian/metaquery/internal/update"
	"github.com/arkilian/metaquery/pkg/types"
)

// statsWindow is how long predicate statistics are retained.
const statsWindow = time.Hour

// App owns every resource a metaquery process uses.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources
	storage  storage.ObjectStorage
	pool     *sqldb.Pool
	shutdown *ShutdownManager
	stats    *observability.QueryStats

	// Sources in configuration order
	sources   map[string]source.DataContext
	composite *source.Composite
	executor  *executor.Executor

	// Lifecycle
	mu      sync.Mutex
	running bool
}

// Errors returned while the app cannot serve queries.
var (
	ErrNotRunning   = errors.New("app is not running")
	ErrShuttingDown = errors.New("app is shutting down")
)

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  zap.NewNop(),
		sources: make(map[string]source.DataContext, len(cfg.Sources)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start opens storage and every configured source.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	a.shutdown = NewShutdownManager(a.cfg.Query.Timeout)
	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}
	if err := a.initSources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize sources: %w", err)
	}

	var dc source.DataContext = a.composite
	if a.cfg.Query.InformationSchema {
		dc = source.WithInformationSchema(dc)
	}
	a.executor = executor.New(dc,
		executor.WithLogger(a.logger),
		executor.WithStats(a.stats),
		executor.WithEvaluator(filter.NewEvaluator(
			filter.WithLogger(a.logger),
			filter.WithLikeCacheSize(a.cfg.Query.LikeCacheSize),
		)),
	)

	a.running = true
	a.logger.Info("metaquery started", zap.Int("sources", len(a.cfg.Sources)))
	return nil
}

// initSharedResources initializes storage, the database pool and statistics.
func (a *App) initSharedResources(ctx context.Context) error {
	a.stats = observability.NewQueryStats(statsWindow)

	a.pool = sqldb.NewPool(sqldb.PoolConfig{
		MaxHandles:      a.cfg.Pool.MaxHandles,
		MaxOpenConns:    a.cfg.Pool.MaxOpenConns,
		ConnMaxIdleTime: a.cfg.Pool.ConnMaxIdleTime,
	})
	a.shutdown.RegisterCloser(a.pool)

	if !a.needsStorage() {
		return nil
	}

	var err error
	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	fields := []zap.Field{zap.String("type", a.cfg.Storage.Type)}
	if a.cfg.Storage.Type == "s3" {
		fields = append(fields,
			zap.String("bucket", a.cfg.Storage.S3.Bucket),
			zap.String("region", a.cfg.Storage.S3.Region),
			zap.String("endpoint", a.cfg.Storage.S3.Endpoint))
		if a.cfg.Storage.CacheMaxBytes > 0 {
			a.storage, err = storage.NewCachedStorage(a.storage, a.cfg.Storage.CacheDir, a.cfg.Storage.CacheMaxBytes)
			if err != nil {
				return fmt.Errorf("failed to initialize storage cache: %w", err)
			}
			fields = append(fields,
				zap.String("cache_dir", a.cfg.Storage.CacheDir),
				zap.Int64("cache_max_bytes", a.cfg.Storage.CacheMaxBytes))
		}
	} else {
		fields = append(fields, zap.String("path", a.cfg.Storage.Path))
	}
	a.logger.Info("storage initialized", fields...)
	return nil
}

func (a *App) needsStorage() bool {
	for _, s := range a.cfg.Sources {
		if s.Kind.IsFile() {
			return true
		}
	}
	return false
}

// initSources opens every configured source and combines them.
func (a *App) initSources(ctx context.Context) error {
	children := make([]source.DataContext, 0, len(a.cfg.Sources))
	for _, sc := range a.cfg.Sources {
		dc, err := a.openSource(ctx, sc)
		if err != nil {
			return fmt.Errorf("source %s: %w", sc.Name, err)
		}
		a.sources[sc.Name] = dc
		children = append(children, dc)
		a.logger.Debug("source opened", zap.String("name", sc.Name), zap.String("kind", string(sc.Kind)))
	}
	a.composite = source.NewComposite(children, source.WithCompositeLogger(a.logger))
	return nil
}

func (a *App) openSource(ctx context.Context, sc config.SourceConfig) (source.DataContext, error) {
	logger := a.logger.With(zap.String("source", sc.Name))
	switch {
	case sc.Kind.IsSQL():
		dialect, err := sqldb.LookupDialect(string(sc.Kind))
		if err != nil {
			return nil, err
		}
		dc, err := sqldb.Open(ctx, a.pool, dialect, sc.DSN, sqldb.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		a.shutdown.RegisterCloser(dc)
		return dc, nil

	case sc.Kind.IsFile():
		opts, err := fileOptions(sc)
		if err != nil {
			return nil, err
		}
		return file.New(a.storage, sc.Name, sc.Prefix, opts, file.WithLogger(logger))

	case sc.Kind == config.KindMemory:
		return memory.New(sc.Name, memory.WithLogger(logger)), nil
	}
	return nil, fmt.Errorf("unsupported source kind: %s", sc.Kind)
}

func fileOptions(sc config.SourceConfig) (file.Options, error) {
	consistency, err := data.ParseConsistency(sc.Consistency)
	if err != nil {
		return file.Options{}, err
	}
	opts := file.Options{
		Header:      sc.Header,
		Extension:   sc.Extension,
		Consistency: consistency,
	}
	if sc.Kind == config.KindFixedWidth {
		opts.Format = file.FormatFixedWidth
		opts.Widths = sc.Widths
	} else {
		opts.Format = file.FormatCSV
		opts.Delimiter = sc.DelimiterRune()
	}
	return opts, nil
}

// Stop waits for running queries and releases every resource.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.logger.Info("shutting down", zap.Int64("in_flight", a.shutdown.InFlightCount()))
	return a.shutdown.Shutdown(ctx, "stop requested")
}

// cleanup releases whatever a failed Start managed to open.
func (a *App) cleanup() {
	if a.shutdown != nil {
		if err := a.shutdown.Shutdown(context.Background(), "start failed"); err != nil {
			a.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
}

// Executor returns the query executor over all sources.
func (a *App) Executor() *executor.Executor {
	return a.executor
}

// Stats returns the query statistics.
func (a *App) Stats() *observability.QueryStats {
	return a.stats
}

// IsShuttingDown reports whether Stop has begun.
func (a *App) IsShuttingDown() bool {
	return a.shutdown != nil && a.shutdown.IsShuttingDown()
}

// Source returns a configured source by name.
func (a *App) Source(name string) (source.DataContext, bool) {
	dc, ok := a.sources[name]
	return dc, ok
}

// Schemas returns the combined schemas, including the information schema
// when enabled.
func (a *App) Schemas(ctx context.Context) ([]*types.Schema, error) {
	if a.executor == nil {
		return nil, ErrNotRunning
	}
	return a.executor.Schemas(ctx)
}

// Query starts a query over all sources.
func (a *App) Query(ctx context.Context) (*ast.Builder, error) {
	if a.executor == nil {
		return nil, ErrNotRunning
	}
	return a.executor.Query(ctx)
}

// Execute runs q under the configured timeout. The query counts as in
// flight until the returned data set is closed.
func (a *App) Execute(ctx context.Context, q *ast.Query) (data.DataSet, error) {
	if a.executor == nil {
		return nil, ErrNotRunning
	}
	if !a.shutdown.TrackQuery() {
		return nil, ErrShuttingDown
	}

	cancel := context.CancelFunc(func() {})
	if a.cfg.Query.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Query.Timeout)
	}
	ds, err := a.executor.Execute(ctx, q)
	if err != nil {
		cancel()
		a.shutdown.UntrackQuery()
		return nil, err
	}
	return &tracked{DataSet: ds, release: func() {
		cancel()
		a.shutdown.UntrackQuery()
	}}, nil
}

// Updater returns an update executor for the source serving schema. The
// source must accept writes.
func (a *App) Updater(ctx context.Context, schema string) (*update.Executor, error) {
	if a.composite == nil {
		return nil, ErrNotRunning
	}
	owner, err := a.composite.Owner(ctx, schema)
	if err != nil {
		return nil, err
	}
	target, ok := owner.(update.Target)
	if !ok {
		return nil, qerrors.NewUnsupportedError(fmt.Sprintf("schema %s is read-only", schema))
	}
	return update.NewExecutor(target, a.executor, update.WithLogger(a.logger)), nil
}

// tracked releases its in-flight slot once closed.
type tracked struct {
	data.DataSet
	release func()
	once    sync.Once
}

func (t *tracked) Close() error {
	err := t.DataSet.Close()
	t.once.Do(t.release)
	return err
}
