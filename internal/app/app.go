package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mx-space/dualpanel/internal/config"
	"github.com/mx-space/dualpanel/internal/database"
	"github.com/mx-space/dualpanel/internal/middleware"
	"github.com/mx-space/dualpanel/internal/modules/selector/schema"
	"github.com/mx-space/dualpanel/internal/modules/selector/session"
	"github.com/mx-space/dualpanel/internal/modules/selector/source"
	pkgcron "github.com/mx-space/dualpanel/internal/pkg/cron"
	jwtpkg "github.com/mx-space/dualpanel/internal/pkg/jwt"
	pkgredis "github.com/mx-space/dualpanel/internal/pkg/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultJWTSecret    = "dualpanel-default-secret"
	retainPurgeInterval = time.Hour
)

// Deps are the backends the HTTP surface runs on.
type Deps struct {
	DB     *gorm.DB
	Source source.Source
	Store  session.RetainStore
	// Counter backs the session open rate limit. Nil disables it.
	Counter middleware.Counter
}

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	redis    *pkgredis.Client
	mongo    *mongo.Client
	sessions *session.Manager
	sched    *pkgcron.Scheduler
	logger   *zap.Logger
	cancel   context.CancelFunc
	started  time.Time
}

// New initializes the application: DB → Redis → Mongo → selector → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var rc *pkgredis.Client
	if cfg.RedisURL != "" {
		rc, err = pkgredis.Connect(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	deps := Deps{DB: db}
	var mc *mongo.Client
	switch cfg.Selector.Source {
	case config.SourceMongo:
		client, mdb, err := database.ConnectMongo(context.Background(), cfg.Mongo)
		if err != nil {
			if rc != nil {
				_ = rc.Close()
			}
			return nil, fmt.Errorf("mongo: %w", err)
		}
		mc = client
		deps.Source = source.NewMongoSource(mdb, cfg.Selector.PageSize)
	case config.SourceMemory:
		deps.Source = source.NewMemorySource(cfg.Selector.PageSize)
	default:
		deps.Source = source.NewSQLSource(db, cfg.Selector.PageSize)
	}

	switch cfg.Selector.Retain {
	case config.RetainRedis:
		deps.Store = session.NewRedisStore(rc)
	case config.RetainMemory:
		deps.Store = session.NewMemoryStore()
	default:
		deps.Store = session.NewOptionStore(db)
	}
	if rc != nil {
		deps.Counter = rc
	}

	logger.Info("selector backends ready",
		zap.String("source", cfg.Selector.Source),
		zap.String("retain", cfg.Selector.Retain),
	)

	a := Assemble(logger, cfg, deps)
	a.redis = rc
	a.mongo = mc
	return a, nil
}

// Assemble wires the router and the selector session manager on top of
// already connected backends.
func Assemble(logger *zap.Logger, cfg *config.AppConfig, deps Deps) *App {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	schemas := schema.NewService(deps.DB)
	manager := session.NewManager(schemas, deps.Source, deps.Store, logger.Named("selector"), sessionOptions(cfg.Selector))

	sched := pkgcron.New(logger.Named("cron"))
	registerJobs(sched, cfg, manager, deps.Store, logger)
	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	a := &App{
		cfg:      cfg,
		router:   router,
		db:       deps.DB,
		sessions: manager,
		logger:   logger,
		sched:    sched,
		cancel:   cancel,
		started:  time.Now(),
	}
	a.registerRoutes(schemas, NewSigner(cfg, logger), deps.Counter)
	return a
}

// purger is implemented by retention stores that need explicit cleanup.
type purger interface {
	Purge(ctx context.Context) (int, error)
}

func registerJobs(sched *pkgcron.Scheduler, cfg *config.AppConfig, manager *session.Manager, store session.RetainStore, logger *zap.Logger) {
	sched.Register(pkgcron.Job{
		Name:        "sweep_idle_sessions",
		Description: "cancel selector sessions idle past idle_ttl",
		Interval:    cfg.Selector.SweepInterval,
		Fn: func(ctx context.Context) error {
			manager.Sweep(ctx, time.Now())
			return nil
		},
	})

	p, ok := store.(purger)
	if !ok {
		return
	}
	sched.Register(pkgcron.Job{
		Name:        "purge_retained_selections",
		Description: "delete expired retained selections",
		Interval:    retainPurgeInterval,
		Fn: func(ctx context.Context) error {
			n, err := p.Purge(ctx)
			if err != nil {
				return fmt.Errorf("purge retained selections: %w", err)
			}
			if n > 0 {
				logger.Info("purged retained selections", zap.Int("count", n))
			}
			return nil
		},
	})
}

func sessionOptions(s config.SelectorRuntimeConfig) session.Options {
	opts := session.DefaultOptions()
	opts.Debounce = s.Debounce
	if s.FetchTimeout > 0 {
		opts.FetchTimeout = s.FetchTimeout
	}
	if s.PageSize > 0 {
		opts.PageSize = s.PageSize
	}
	if s.RetainTTL > 0 {
		opts.RetainTTL = s.RetainTTL
	}
	if s.IdleTTL > 0 {
		opts.IdleTTL = s.IdleTTL
	}
	return opts
}

// NewSigner returns the token signer for cfg, falling back to a built-in
// secret when none is configured.
func NewSigner(cfg *config.AppConfig, logger *zap.Logger) *jwtpkg.Signer {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		logger.Warn("jwt_secret is empty, using built-in default secret")
		secret = defaultJWTSecret
	}
	return jwtpkg.NewSigner(secret)
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		c.AllowOriginFunc = func(origin string) bool { return originAllowed(patterns, origin) }
	} else {
		c.AllowOriginFunc = func(string) bool { return true }
	}
	return c
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Sessions exposes the selector session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Jobs exposes the maintenance scheduler.
func (a *App) Jobs() *pkgcron.Scheduler { return a.sched }

// Shutdown stops maintenance jobs and closes optional backends.
func (a *App) Shutdown() {
	a.cancel()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
}
