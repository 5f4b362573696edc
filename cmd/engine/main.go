package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/config"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/internal/handlers"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/conversation"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/crypto"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/database"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/events"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/expressions"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/external"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/health"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/httpclient"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/interlocutor"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/kafka"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/middleware"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/reconciliation"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/redis"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/repositories"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/startup"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tenant"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tracing/exporters"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/turn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("engine exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// app holds what the startup dependencies create.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger

	db       *database.DatabaseInstance
	redis    *redis.Client
	producer *kafka.Producer
	cache    *tenant.Cache
	eval     *expressions.Evaluator
	listener *redis.Subscription
	checker  *health.Checker
	server   *echo.Echo

	shutdownTracing func(context.Context) error
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	a := &app{cfg: cfg, logger: logger, checker: health.NewChecker(cfg.Version), eval: expressions.NewEvaluator()}

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(&startup.Dependency{Name: "tracing", OnStart: a.startTracing, OnStop: a.stopTracing})
	s.AddDependency(&startup.Dependency{Name: "database", OnStart: a.startDatabase, OnStop: a.stopDatabase})
	s.AddDependency(&startup.Dependency{Name: "redis", OnStart: a.startRedis, OnStop: a.stopRedis})
	s.AddDependency(&startup.Dependency{Name: "kafka", OnStart: a.startKafka, OnStop: a.stopKafka})
	s.AddDependency(&startup.Dependency{
		Name:     "tenant-cache",
		Requires: []string{"database", "redis"},
		OnStart:  a.startTenantCache,
		OnStop:   a.stopTenantCache,
	})
	s.AddDependency(&startup.Dependency{
		Name:     "http",
		Requires: []string{"tracing", "tenant-cache", "kafka"},
		OnStart:  a.startServer,
		OnStop:   a.stopServer,
	})

	if err := s.Start(ctx); err != nil {
		return err
	}
	a.checker.SetReady(true)
	logger.Infof("%s %s is ready on port %d", cfg.AppName, cfg.Version, cfg.Port)

	<-ctx.Done()
	logger.Info("Shutting down")
	a.checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func (a *app) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: a.cfg.AppName,
		OTLPEnabled: a.cfg.OTLPEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: a.cfg.OTLPEndpoint,
			Protocol: a.cfg.OTLPProtocol,
			Insecure: a.cfg.OTLPInsecure,
			Headers:  exporters.ParseHeaders(a.cfg.OTLPHeaders),
		},
	})
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

func (a *app) stopTracing(ctx context.Context) error {
	if a.shutdownTracing == nil {
		return nil
	}
	return a.shutdownTracing(ctx)
}

func (a *app) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.Config{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		UserName:        a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.MigratePostgres(db.DB, a.cfg.DatabaseName); err != nil {
		db.Close()
		return err
	}

	a.db = db
	a.checker.AddCheck("database", db.PingContext)
	return nil
}

func (a *app) stopDatabase(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	if !a.cfg.RedisEnabled {
		a.logger.Warn("Redis is disabled; conversation locks and tenant invalidations are local to this replica")
		return nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}

	a.redis = client
	a.checker.AddOptionalCheck("redis", client.Ping)
	return nil
}

func (a *app) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) startKafka(context.Context) error {
	if !a.cfg.KafkaEnabled {
		a.logger.Info("Kafka is disabled; domain events are dropped")
		return nil
	}
	producer, err := kafka.NewProducer(kafka.ParseConfig(a.cfg.KafkaBrokers, a.cfg.KafkaEventsTopic), a.logger)
	if err != nil {
		return err
	}
	a.producer = producer
	return nil
}

func (a *app) stopKafka(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *app) startTenantCache(ctx context.Context) error {
	var decrypter crypto.Decrypter
	if a.cfg.CredentialPassphrase != "" {
		box, err := crypto.NewSealedBox(a.cfg.CredentialPassphrase, a.cfg.CredentialSalt, crypto.DefaultKeyParams())
		if err != nil {
			return err
		}
		decrypter = box
	} else {
		a.logger.Warn("CREDENTIAL_PASSPHRASE is not set; external systems will not be queried")
	}

	opts := []tenant.Option{
		tenant.WithTTL(a.cfg.TenantCacheTTL),
		tenant.WithSweepInterval(a.cfg.TenantCacheSweepInterval),
		tenant.WithConfigCheck(func(tenantCfg *models.TenantConfig) error {
			return external.CheckMapping(a.eval, tenantCfg.FieldMapping.Data)
		}),
	}
	var broadcaster *tenant.RedisBroadcaster
	if a.redis != nil {
		broadcaster = tenant.NewRedisBroadcaster(a.redis, a.logger)
		opts = append(opts, tenant.WithBroadcaster(broadcaster))
	}

	a.cache = tenant.NewCache(repositories.NewTenantRepository(a.db, a.logger), decrypter, a.logger, opts...)
	if err := a.cache.Start(ctx); err != nil {
		return err
	}

	if broadcaster != nil {
		listener, err := broadcaster.Listen(context.WithoutCancel(ctx), a.cache)
		if err != nil {
			_ = a.cache.Stop(ctx)
			return err
		}
		a.listener = listener
	}
	return nil
}

func (a *app) stopTenantCache(ctx context.Context) error {
	if a.listener != nil {
		a.listener.Close()
	}
	if a.cache == nil {
		return nil
	}
	return a.cache.Stop(ctx)
}

func (a *app) emitter() events.Emitter {
	if a.producer == nil {
		return events.Nop{}
	}
	return events.NewEmitter(a.producer, a.logger)
}

func (a *app) startServer(context.Context) error {
	cfg := a.cfg
	emitter := a.emitter()

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.ExternalTimeout
	httpCfg.RetryCount = cfg.ExternalRetryCount
	httpCfg.RetryWait = cfg.ExternalRetryWait
	httpCfg.UserAgent = cfg.AppName + "/" + cfg.Version
	externalClient := external.NewClient(httpclient.NewClient(httpCfg, a.logger), a.eval, a.logger, cfg.ExternalTimeout)

	patients := repositories.NewPatientRepository(a.db, a.logger)
	engine := reconciliation.NewEngine(externalClient, patients, emitter, a.logger)
	analyzer := interlocutor.NewAnalyzer(a.logger)

	var managerOpts []conversation.Option
	if a.redis != nil {
		managerOpts = append(managerOpts, conversation.WithLocker(redis.NewLocker(a.redis, ""), cfg.ConversationLockTTL, cfg.ConversationLockWait))
	}
	manager := conversation.NewManager(repositories.NewConversationStateRepository(a.db, a.logger), emitter, a.logger, managerOpts...)
	turns := turn.NewService(engine, analyzer, manager, a.logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowOrigins, AllowMethods: cfg.AllowMethods}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")

	tenantHandler := handlers.NewTenantHandler(a.cache, a.logger)
	admin := api.Group("/admin")
	if cfg.AuthEnabled {
		verifier, err := middleware.NewVerifier(context.Background(), cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return err
		}
		admin.Use(middleware.Authentication(a.logger, verifier, cfg.AuthAdminRole))
	}
	tenantHandler.RegisterAdminRoutes(admin)

	// Attached per route so unknown paths under /api/v1 still 404.
	resolveTenant := middleware.Tenant(a.logger, a.cache)
	tenantHandler.RegisterRoutes(api, resolveTenant)
	handlers.NewPatientHandler(engine, patients, analyzer, a.logger).RegisterRoutes(api, resolveTenant)
	handlers.NewConversationHandler(manager, turns, a.logger).RegisterRoutes(api, resolveTenant)

	a.server = e
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (a *app) stopServer(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
