package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/psds-microservice/helpy/paths"
	"gorm.io/gorm"

	"github.com/psds-microservice/support-bot/internal/assistant"
	"github.com/psds-microservice/support-bot/internal/bot"
	"github.com/psds-microservice/support-bot/internal/config"
	"github.com/psds-microservice/support-bot/internal/database"
	"github.com/psds-microservice/support-bot/internal/handler"
	"github.com/psds-microservice/support-bot/internal/kafka"
	"github.com/psds-microservice/support-bot/internal/metrics"
	apirouter "github.com/psds-microservice/support-bot/internal/router"
	"github.com/psds-microservice/support-bot/internal/scheduler"
	"github.com/psds-microservice/support-bot/internal/service"
	"github.com/psds-microservice/support-bot/internal/session"
	"github.com/psds-microservice/support-bot/internal/store"
	"github.com/psds-microservice/support-bot/internal/telegram"
)

const serviceName = "support-bot"

// Bot приложение: Telegram-бот поддержки + служебный HTTP (health, metrics, API тикетов).
type Bot struct {
	cfg        *config.Config
	db         *gorm.DB
	producer   *kafka.Producer
	tickets    *service.TicketService
	telegram   *telegram.Client
	dispatcher *bot.Dispatcher
	scheduler  *scheduler.Service
	httpSrv    *http.Server
}

// OpenDB подключается к БД и приводит схему к актуальной: goose для postgres, AutoMigrate для sqlite.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == database.DriverPostgres {
		if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if cfg.DBDriver == database.DriverSQLite {
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	return db, nil
}

// NewBot собирает все компоненты. Соединение с Telegram проверяется сразу.
func NewBot(cfg *config.Config) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := log.Default()

	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}

	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopicTicket)
	svcOpts := []service.Option{service.WithLogger(logger)}
	if producer.Enabled() {
		svcOpts = append(svcOpts, service.WithProducer(producer))
		logger.Printf("kafka: publishing ticket events to %q", cfg.KafkaTopicTicket)
	}
	ticketSvc := service.NewTicketService(store.NewTicketStore(db), cfg.AdminUserID, svcOpts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tg, err := telegram.New(cfg.TelegramToken, logger)
	if err != nil {
		return nil, err
	}

	routerOpts := []bot.RouterOption{bot.WithMetrics(m), bot.WithRouterLogger(logger)}
	if cfg.AssistantURL != "" {
		classifier := assistant.NewOpenAI(cfg.AssistantURL, cfg.AssistantAPIKey, cfg.AssistantModel, cfg.AssistantPrompt)
		routerOpts = append(routerOpts, bot.WithAssistant(classifier, cfg.EscalationMarker))
		logger.Printf("assistant: %s (model %s)", cfg.AssistantURL, cfg.AssistantModel)
	}
	router := bot.NewRouter(ticketSvc, session.NewStore(nil), tg, routerOpts...)

	sweeper, err := scheduler.NewService(router, cfg.SweepSchedule, cfg.SessionTTL, scheduler.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	health := handler.NewHealthHandler(serviceName, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apirouter.New(health, handler.NewTicketHandler(ticketSvc), reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Bot{
		cfg:        cfg,
		db:         db,
		producer:   producer,
		tickets:    ticketSvc,
		telegram:   tg,
		dispatcher: bot.NewDispatcher(router, cfg.Workers, logger, cfg.Debug()),
		scheduler:  sweeper,
		httpSrv:    httpSrv,
	}, nil
}

// Run принимает сообщения до отмены ctx. Порядок остановки: приём апдейтов,
// обработка уже полученных событий, планировщик, HTTP, очередь событий тикетов, Kafka, БД.
func (b *Bot) Run(ctx context.Context) error {
	host := b.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + b.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", b.httpSrv.Addr)
	log.Printf("  Health:        %s%s", base, paths.PathHealth)
	log.Printf("  Ready:         %s%s", base, paths.PathReady)
	log.Printf("  Metrics:       %s%s", base, apirouter.PathMetrics)
	log.Printf("  Swagger UI:    %s%s", base, paths.PathSwagger)
	log.Printf("  Swagger spec:  %s%s/openapi.json", base, paths.PathSwagger)
	log.Printf("  API v1:        %s/api/v1/tickets", base)

	go func() {
		if err := b.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	events := make(chan bot.Event, 64)
	go func() {
		defer wg.Done()
		if err := b.telegram.Poll(ctx, events); err != nil {
			log.Printf("telegram: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := b.scheduler.Run(ctx); err != nil {
			log.Printf("scheduler: %v", err)
		}
	}()

	log.Printf("bot: handling updates with %d workers, admin %d", b.cfg.Workers, b.cfg.AdminUserID)
	if err := b.dispatcher.Run(ctx, events); err != nil {
		log.Printf("dispatcher: %v", err)
	}
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	if err := b.httpSrv.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	b.tickets.Close()
	if err := b.producer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("kafka close: %w", err)
	}
	if sqlDB, err := b.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("db close: %w", err)
		}
	}
	log.Println("bot: stopped")
	return firstErr
}
