// Package container provides dependency injection and lifecycle management
// for the approval engine.
package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approval-engine/internal/infrastructure/storage"
	"github.com/garyjia/approval-engine/migrations"
	"github.com/garyjia/approval-engine/pkg/database"
)

// IdentityStore reads and administers role grants and group memberships
type IdentityStore interface {
	port.IdentityProvider
	GrantRole(ctx context.Context, actorID, role string) error
	AddToGroup(ctx context.Context, actorID, groupKey string) error
}

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	TxManager    port.TransactionManager
	Repositories *RepositoryBundle
	Ping         func(ctx context.Context) error
	Close        func() error
	Migrated     int
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Requests port.RequestRepository
	Audit    port.AuditRepository
	Effects  port.EffectLog
	Ledger   port.CreditLedger
	Identity IdentityStore
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Workflow   service.WorkflowService
	Export     *service.ExportService
	Actors     *service.ActorResolver
	Audit      *service.AuditTrail
	Effects    *service.SideEffectRegistry
	Reconciler *service.Reconciler
	Events     dispatcher.Dispatcher
}

// ProvideDatabase opens the configured driver and applies pending migrations
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		return provideSQLite(cfg, logger)
	case config.DriverPostgres:
		return providePostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func provideSQLite(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(conn, migrations.FS, logger).RunMigrations(migrations.SQLiteDir)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := sqlite.NewDB(conn.DB, logger)
	return &DatabaseBundle{
		TxManager: db,
		Repositories: &RepositoryBundle{
			Requests: sqlite.NewRequestRepository(db, logger),
			Audit:    sqlite.NewAuditRepository(db, logger),
			Effects:  sqlite.NewEffectLog(db, logger),
			Ledger:   sqlite.NewLedgerRepository(db, logger),
			Identity: sqlite.NewIdentityRepository(db, logger),
		},
		Ping:     conn.PingContext,
		Close:    conn.Close,
		Migrated: applied,
	}, nil
}

func providePostgres(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := postgres.Open(ctx, cfg.DSN, postgres.PoolConfig{
		MaxConns:        int32(cfg.MaxOpenConns),
		MinConns:        int32(cfg.MaxIdleConns),
		MaxConnLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := db.Migrate(ctx, migrations.FS, migrations.PostgresDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		TxManager: db,
		Repositories: &RepositoryBundle{
			Requests: postgres.NewRequestRepository(db, logger),
			Audit:    postgres.NewAuditRepository(db, logger),
			Effects:  postgres.NewEffectLog(db),
			Ledger:   postgres.NewLedgerRepository(db, logger),
			Identity: postgres.NewIdentityRepository(db),
		},
		Ping:     db.Ping,
		Close:    db.Close,
		Migrated: applied,
	}, nil
}

// ProvideDocumentStore creates the attachment store
func ProvideDocumentStore(cfg *config.StorageConfig, logger *zap.Logger) (port.DocumentStore, error) {
	if cfg == nil || cfg.DocumentDir == "" {
		return nil, fmt.Errorf("storage.document_dir is required")
	}
	return storage.NewLocalDocumentStore(cfg.DocumentDir, logger), nil
}

// ProvideRegistry returns the built-in workflows, replaced per request type
// by definitions from the configured file
func ProvideRegistry(cfg *config.WorkflowConfig, logger *zap.Logger) (*workflow.Registry, error) {
	registry := workflow.DefaultRegistry()
	if cfg == nil || cfg.DefinitionsFile == "" {
		return registry, nil
	}

	defs, err := workflow.LoadDefinitionsFile(cfg.DefinitionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow definitions: %w", err)
	}
	for _, def := range defs {
		logger.Info("Workflow definition overridden",
			zap.String("request_type", string(def.RequestType)),
			zap.Int("stages", len(def.Stages)))
	}
	return registry.With(defs...), nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Registry  *workflow.Registry
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Documents port.DocumentStore
	Logger    *zap.Logger
}

// ProvideServices creates the application services and registers the
// built-in side-effects
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Registry == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}

	trail := service.NewAuditTrail(deps.Repos.Audit)
	effects := service.NewSideEffectRegistry(trail, deps.Repos.Effects, deps.TxManager)
	if err := service.RegisterDefaultSideEffects(effects, deps.Registry, deps.Repos.Ledger); err != nil {
		return nil, fmt.Errorf("failed to register side-effects: %w", err)
	}

	events := dispatcher.NewDispatcher(dispatcher.WithLogger(logger))
	events.SubscribeNamed(dispatcher.AllEvents, "event-log", dispatcher.LoggingHandler(logger))

	wf := service.NewWorkflowService(
		deps.Registry,
		deps.Repos.Requests,
		trail,
		effects,
		deps.TxManager,
		deps.Documents,
		logger,
		service.WithEventPublisher(events),
	)

	return &ServiceBundle{
		Workflow:   wf,
		Export:     service.NewExportService(wf, deps.Registry, logger),
		Actors:     service.NewActorResolver(deps.Repos.Identity, logger),
		Audit:      trail,
		Effects:    effects,
		Reconciler: service.NewReconciler(deps.Registry, deps.Repos.Requests, effects, deps.Repos.Effects, logger),
		Events:     events,
	}, nil
}
