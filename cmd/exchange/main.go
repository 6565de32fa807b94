package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	exchangeapp "github.com/wyfcoding/p2pexchange/internal/exchange/application"
	exchangedomain "github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/internal/exchange/infrastructure/messaging"
	exchangemysql "github.com/wyfcoding/p2pexchange/internal/exchange/infrastructure/persistence/mysql"
	"github.com/wyfcoding/p2pexchange/internal/exchange/infrastructure/rates"
	exchangehttp "github.com/wyfcoding/p2pexchange/internal/exchange/interfaces/http"
	walletapp "github.com/wyfcoding/p2pexchange/internal/wallet/application"
	walletdomain "github.com/wyfcoding/p2pexchange/internal/wallet/domain"
	walletmysql "github.com/wyfcoding/p2pexchange/internal/wallet/infrastructure/persistence/mysql"
	wallethttp "github.com/wyfcoding/p2pexchange/internal/wallet/interfaces/http"
	"github.com/wyfcoding/p2pexchange/pkg/cache"
	"github.com/wyfcoding/p2pexchange/pkg/config"
	"github.com/wyfcoding/p2pexchange/pkg/db"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
	"github.com/wyfcoding/p2pexchange/pkg/metrics"
	"github.com/wyfcoding/p2pexchange/pkg/middleware"
	"github.com/wyfcoding/p2pexchange/pkg/mq"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	ctx := context.Background()

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&exchangedomain.Currency{},
		&exchangedomain.Method{},
		&exchangedomain.Requisite{},
		&exchangedomain.RequisiteBlacklist{},
		&exchangedomain.Request{},
		&exchangedomain.Order{},
		&exchangedomain.OrderRequest{},
		&messaging.OutboxMessage{},
		&exchangemysql.ActionRecord{},
		&walletdomain.Wallet{},
		&walletdomain.BanRecord{},
		&walletdomain.Transfer{},
	); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.Fatalf("init redis: %v", err)
	}
	defer redisCache.Close()

	producer, err := mq.NewProducer(mq.Config{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		log.Fatalf("init kafka producer: %v", err)
	}
	defer producer.Close()

	m := metrics.New(cfg.ServiceName)

	// repositories
	currencyRepo := exchangemysql.NewCurrencyRepository(database.DB)
	methodRepo := exchangemysql.NewMethodRepository(database.DB)
	requisiteRepo := exchangemysql.NewRequisiteRepository(database.DB)
	blacklistRepo := exchangemysql.NewBlacklistRepository(database.DB)
	requestRepo := exchangemysql.NewRequestRepository(database.DB)
	orderRepo := exchangemysql.NewOrderRepository(database.DB)
	orderRequestRepo := exchangemysql.NewOrderRequestRepository(database.DB)
	actionLog := exchangemysql.NewActionLogger(database.DB)
	walletRepo := walletmysql.NewWalletRepository(database.DB)
	banRepo := walletmysql.NewBanRepository(database.DB)
	transferRepo := walletmysql.NewTransferRepository(database.DB)

	// collaborators
	notifier := messaging.NewOutboxNotifier(database.DB, m)
	rateSource := rates.NewRedisSource(redisCache, 0)
	ledger := walletapp.NewService(walletRepo, banRepo, transferRepo)

	// engine and services
	allocator := exchangedomain.NewAllocator(requisiteRepo, blacklistRepo)
	factory := exchangeapp.NewOrderFactory(orderRepo, requisiteRepo, methodRepo, rateSource, notifier, m)
	engine := exchangeapp.NewEngine(database, requestRepo, orderRepo, currencyRepo, methodRepo,
		allocator, factory, rateSource, notifier, ledger, actionLog, m,
		cfg.Engine.RateFixTimeoutDuration(), cfg.Engine.WaitingTimeoutDuration())
	orderService := exchangeapp.NewOrderCommandService(database, orderRepo, requestRepo,
		requisiteRepo, methodRepo, orderRequestRepo, engine, ledger, notifier, actionLog, m)
	requestService := exchangeapp.NewRequestCommandService(database, requestRepo, orderRepo,
		methodRepo, engine, orderService, actionLog)
	orderRequestService := exchangeapp.NewOrderRequestCommandService(database, orderRequestRepo,
		orderRepo, requestRepo, requisiteRepo, currencyRepo, blacklistRepo,
		orderService, engine, notifier, actionLog)
	requisiteService := exchangeapp.NewRequisiteCommandService(database, requisiteRepo,
		methodRepo, orderRepo, actionLog)
	queryService := exchangeapp.NewQueryService(requestRepo, orderRepo, orderRequestRepo,
		requisiteRepo, currencyRepo, methodRepo)

	// background workers
	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	sweeper := exchangeapp.NewSweeper(requestRepo, engine, cfg.Engine.SweepYieldDuration())
	relay := messaging.NewRelay(database.DB, producer, cfg.Kafka.NotificationTopic,
		cfg.Engine.OutboxIntervalDuration(), cfg.Engine.OutboxBatchSize)

	var wg sync.WaitGroup
	jobs := []*exchangeapp.Job{
		exchangeapp.NewJob("loading", cfg.Engine.SweepIntervalDuration(), m, sweeper.SweepLoading),
		exchangeapp.NewJob("waiting", cfg.Engine.SweepIntervalDuration(), m, sweeper.SweepWaiting),
		exchangeapp.NewJob("reservation", cfg.Engine.SweepIntervalDuration(), m, sweeper.SweepReservation),
		exchangeapp.NewJob("active", cfg.Engine.SweepIntervalDuration(), m, sweeper.SweepActive),
	}
	for _, job := range jobs {
		wg.Add(1)
		go func(job *exchangeapp.Job) {
			defer wg.Done()
			job.Start(jobCtx)
		}(job)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Start(jobCtx)
	}()

	// HTTP
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Logging(), middleware.Recovery(), middleware.CORS(), middleware.Metrics(m))
	router.GET("/sys/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "UP",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	exchangehttp.NewHandler(requestService, orderService, orderRequestService,
		requisiteService, queryService).RegisterRoutes(router)
	exchangehttp.NewAdminHandler(methodRepo, rateSource).RegisterRoutes(router)
	wallethttp.NewHandler(ledger).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	go func() {
		logger.Info(ctx, "http server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown failed", "error", err)
	}
	stopJobs()
	wg.Wait()
	logger.Info(ctx, "stopped")
}
