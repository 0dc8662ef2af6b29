package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"qline/internal/auth"
	"qline/internal/config"
	"qline/internal/events"
	"qline/internal/handlers"
	"qline/internal/insights"
	"qline/internal/notify"
	"qline/internal/sequencer"
	"qline/internal/service"
	"qline/internal/storage"
	"qline/internal/tasks"
	"qline/internal/ws"
)

// App — процесс API: HTTP-сервер, WebSocket-хаб, планировщик и, по желанию, воркер писем.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *gorm.DB
	redis     *redis.Client
	asynq     *asynq.Client
	kafka     *events.KafkaPublisher
	hub       *ws.Hub
	scheduler *tasks.Scheduler
	worker    *notify.Worker
	httpSrv   *http.Server
}

type Options struct {
	// WithWorker запускает обработчик писем в том же процессе.
	WithWorker bool
}

// New подключает зависимости и собирает сервисы. Redis, Kafka, почта и модель
// необязательны: без настроек соответствующие части работают как no-op.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := storage.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := storage.Open(cfg.DSN())
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, db: db}

	if cfg.RedisEnabled() {
		if a.redis, err = storage.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			return nil, err
		}
	}

	mailer := notify.NewResendClient(cfg.Mail.ResendAPIKey, cfg.Mail.From)
	if !mailer.Enabled() {
		log.Warn("RESEND_API_KEY не задан, письма отправляться не будут")
	}
	var dispatcher notify.Dispatcher = notify.NewAsyncDispatcher(mailer, log)
	if a.redis != nil {
		redisOpt := RedisConnOpt(cfg)
		a.asynq = asynq.NewClient(redisOpt)
		dispatcher = notify.NewTaskDispatcher(a.asynq, log)
		if opts.WithWorker {
			a.worker = notify.NewWorker(redisOpt, mailer, log)
		}
	}
	notifier, err := notify.NewNotifier(dispatcher, cfg.AppURL, log)
	if err != nil {
		return nil, err
	}

	a.hub = ws.NewHub(log)
	a.kafka = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	pub := events.Multi{a.hub, a.kafka}

	var llm insights.Completer
	if cfg.AI.APIKey != "" {
		llm = insights.NewChatClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout)
	}
	var cache insights.Cache
	if a.redis != nil {
		cache = insights.NewRedisCache(a.redis)
	}

	seq := sequencer.New(db)
	tokens := auth.NewTokens(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	h := handlers.New(handlers.Deps{
		Issuer:     auth.NewIssuer(db, tokens),
		Resolver:   auth.NewResolver(db, tokens),
		Lifecycle:  service.NewLifecycleService(db, seq, pub, cfg.Queue, log),
		Admission:  service.NewAdmissionService(seq, notifier, pub, cfg.Queue, log),
		Transition: service.NewTransitionService(db, seq, notifier, pub, cfg.Queue, log),
		Analytics:  service.NewAnalyticsService(db, cfg.Queue),
		Insights:   insights.NewService(llm, cache, cfg.AI.CacheTTL, cfg.AI.Timeout, log),
	})
	a.scheduler = tasks.NewScheduler(db, seq, pub, cfg.Queue.EntryMaxAge, log)

	router := NewRouter(RouterConfig{
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
		Handler:     h,
		Hub:         a.hub,
		Ready:       a.ping,
	})
	a.httpSrv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// RedisConnOpt — параметры подключения asynq к тому же Redis.
func RedisConnOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
}

func (a *App) ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Run запускает все части и блокируется до отмены ctx, затем корректно останавливается.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})
	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(ctx) })
	}
	g.Go(func() error {
		a.log.Info("HTTP-сервер запущен",
			"addr", a.httpSrv.Addr,
			"swagger", "/swagger/index.html",
			"worker", a.worker != nil,
		)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		a.log.Info("HTTP-сервер остановлен")
		return nil
	})
	return g.Wait()
}

func (a *App) close() {
	if err := a.kafka.Close(); err != nil {
		a.log.Warn("Ошибка закрытия Kafka", "error", err)
	}
	if a.asynq != nil {
		_ = a.asynq.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
