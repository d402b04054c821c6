// Package app wires configuration, stores, services and the HTTP surface into
// a runnable gateway.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/eventops/auth-gateway/internal/api"
	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/core/service"
	"github.com/eventops/auth-gateway/internal/infrastructure/db/memory"
	"github.com/eventops/auth-gateway/internal/infrastructure/db/mongo"
	"github.com/eventops/auth-gateway/internal/infrastructure/db/postgres"
	"github.com/eventops/auth-gateway/internal/infrastructure/db/redis"
	"github.com/eventops/auth-gateway/internal/infrastructure/http/handlers"
	"github.com/eventops/auth-gateway/internal/infrastructure/queue"
	"github.com/eventops/auth-gateway/internal/pkg/config"
)

// Stores is the set of credential store adapters the services run on.
type Stores struct {
	Users       ports.UserRepository
	Sessions    ports.SessionRepository
	Blacklist   ports.TokenBlacklist
	CSRF        ports.CSRFRepository
	Permissions ports.PermissionRepository
	SecurityLog ports.SecurityLogRepository
	Owners      ports.ResourceOwnerRepository
}

// MemoryStores adapts an in-memory store bundle.
func MemoryStores(m *memory.Store) Stores {
	return Stores{
		Users:       m.Users,
		Sessions:    m.Sessions,
		Blacklist:   m.Blacklist,
		CSRF:        m.CSRF,
		Permissions: m.Permissions,
		SecurityLog: m.SecurityLog,
		Owners:      m.Owners,
	}
}

// Options tweak assembly; the zero value is production behaviour.
type Options struct {
	Health   handlers.Dependencies
	Registry *prometheus.Registry
}

// App is an assembled gateway.
type App struct {
	Echo       *echo.Echo
	Dispatcher *queue.Dispatcher
	Sweeper    *service.Sweeper

	closers []func()
	once    sync.Once
}

// New connects the stores selected by cfg and assembles the gateway.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	var (
		stores  Stores
		health  handlers.Dependencies
		closers []func()
		err     error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory credential store; data is lost on restart")
		stores = MemoryStores(memory.New())
	default:
		var db *sql.DB
		db, err = postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		health.Postgres = db

		if cfg.Postgres.AutoMigrate {
			if err = postgres.EnsureSchema(ctx, db); err != nil {
				closeAll()
				return nil, err
			}
		}
		stores = Stores{
			Users:       postgres.NewUserRepository(db),
			Sessions:    postgres.NewSessionRepository(db),
			Blacklist:   postgres.NewBlacklist(db),
			CSRF:        postgres.NewCSRFRepository(db),
			Permissions: postgres.NewPermissionRepository(db),
			SecurityLog: postgres.NewSecurityLogRepository(db),
			Owners:      postgres.NewResourceOwnerRepository(db),
		}

		if cfg.Redis.Enabled {
			var rdb *goredis.Client
			rdb, err = redis.Connect(ctx, redis.Config{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				closeAll()
				return nil, err
			}
			closers = append(closers, func() { _ = rdb.Close() })
			health.Redis = rdb
			stores.Blacklist = redis.NewBlacklist(rdb)
		}
	}

	if cfg.AuditSink == config.SinkMongo {
		var (
			client *mongodriver.Client
			mdb    *mongodriver.Database
		)
		client, mdb, err = mongo.Connect(ctx, mongo.Config{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			AppName:     cfg.Mongo.AppName,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		health.Mongo = mdb

		sink := mongo.NewSecurityLogRepository(mdb)
		if err = sink.EnsureIndexes(ctx); err != nil {
			closeAll()
			return nil, err
		}
		stores.SecurityLog = sink
	}

	a, err := Assemble(cfg, stores, log, Options{Health: health})
	if err != nil {
		closeAll()
		return nil, err
	}
	if err := stores.Permissions.EnsureBuiltinRoles(ctx, domain.BuiltinRolePermissions); err != nil {
		closeAll()
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	a.closers = append(a.closers, closers...)
	return a, nil
}

// Assemble builds services and the router on top of already connected stores.
func Assemble(cfg *config.Config, stores Stores, log zerolog.Logger, opts Options) (*App, error) {
	tokens, err := service.NewTokenService(service.TokenConfig{
		Issuer:        cfg.JWT.Issuer,
		AccessSecret:  cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     service.ParseLifetime(cfg.JWT.ExpiresIn),
		RefreshTTL:    service.ParseLifetime(cfg.JWT.RefreshExpiresIn),
		RememberTTL:   service.ParseLifetime(cfg.JWT.RememberExpiresIn),
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := queue.NewDispatcher(cfg.AuditWorkers, stores.SecurityLog, log.With().Str("component", "audit").Logger())

	sessions := service.NewSessionManager(stores.Sessions, tokens, service.SessionConfig{
		TTL:         service.ParseLifetime(cfg.Security.SessionTTL),
		RememberTTL: service.ParseLifetime(cfg.Security.SessionRememberTTL),
	}, log.With().Str("component", "sessions").Logger())

	authSvc := service.NewAuthService(service.AuthDeps{
		Users:       stores.Users,
		Permissions: stores.Permissions,
		Blacklist:   stores.Blacklist,
		Tokens:      tokens,
		Sessions:    sessions,
		Hasher:      service.NewPasswordHasher(cfg.Security.BcryptCost),
		Auditor:     dispatcher,
	}, service.AuthConfig{
		DefaultRole:      domain.Role(cfg.Security.DefaultRole),
		MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
		LockoutDuration:  cfg.Security.LockoutDuration,
	}, log.With().Str("component", "auth").Logger())

	authn := service.NewAuthenticator(service.AuthenticatorDeps{
		Tokens:      tokens,
		Sessions:    sessions,
		Users:       stores.Users,
		Permissions: stores.Permissions,
		Blacklist:   stores.Blacklist,
		Auditor:     dispatcher,
	}, cfg.Security.IPCheck, log.With().Str("component", "authenticator").Logger())

	csrf := service.NewCSRFService(stores.CSRF, dispatcher, cfg.Security.CSRFTTL,
		log.With().Str("component", "csrf").Logger())

	e := api.NewRouter(api.Dependencies{
		Config:        cfg,
		Log:           log.With().Str("component", "http").Logger(),
		Auth:          authSvc,
		Authenticator: authn,
		Authorizer:    service.NewAuthorizer(stores.Permissions, stores.Owners),
		CSRF:          csrf,
		SecurityLogs:  service.NewSecurityLogService(stores.SecurityLog),
		Health:        opts.Health,
		Registry:      opts.Registry,
	})

	return &App{
		Echo:       e,
		Dispatcher: dispatcher,
		Sweeper: service.NewSweeper(sessions, stores.CSRF, cfg.SweepInterval,
			log.With().Str("component", "sweeper").Logger()),
	}, nil
}

// Start launches the background workers. The sweeper stops when ctx is
// cancelled; audit workers outlive ctx so Close can drain them.
func (a *App) Start(ctx context.Context) {
	a.Dispatcher.Start(context.WithoutCancel(ctx))
	go a.Sweeper.Run(ctx)
}

// Close drains pending audit entries and releases store connections.
func (a *App) Close() {
	a.once.Do(func() {
		a.Dispatcher.Close()
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
	})
}
