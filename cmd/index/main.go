package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/marketindex/internal/index/application"
	indexdomain "github.com/wyfcoding/marketindex/internal/index/domain"
	"github.com/wyfcoding/marketindex/internal/index/infrastructure/gateway"
	indexmysql "github.com/wyfcoding/marketindex/internal/index/infrastructure/persistence/mysql"
	indexredis "github.com/wyfcoding/marketindex/internal/index/infrastructure/persistence/redis"
	httpserver "github.com/wyfcoding/marketindex/internal/index/interfaces/http"
	mdapplication "github.com/wyfcoding/marketindex/internal/marketdata/application"
	mddomain "github.com/wyfcoding/marketindex/internal/marketdata/domain"
	mdmysql "github.com/wyfcoding/marketindex/internal/marketdata/infrastructure/persistence/mysql"
	mdredis "github.com/wyfcoding/marketindex/internal/marketdata/infrastructure/persistence/redis"
	mdconsumer "github.com/wyfcoding/marketindex/internal/marketdata/interfaces/consumer"
	"github.com/wyfcoding/pkg/cache"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	configPath   = flag.String("config", "configs/index/config.toml", "config file path")
	exchangeTZ   = flag.String("exchange-timezone", "America/New_York", "exchange timezone")
	sessionOpen  = flag.String("session-open", "09:30", "session open, exchange local time")
	sessionClose = flag.String("session-close", "16:00", "session close, exchange local time")
	holidayList  = flag.String("holidays", "", "comma separated holiday dates, YYYY-MM-DD")
)

func main() {
	flag.Parse()

	// 1. Config
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	logCfg := &logging.Config{
		Service:    cfg.Server.Name,
		Module:     "index",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	logger := logging.NewFromConfig(logCfg)
	slog.SetDefault(logger.Logger)

	// 3. Metrics
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		go metricsImpl.ExposeHTTP(cfg.Metrics.Port)
	}

	// 4. Database
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(
			&indexdomain.IndexDefinition{},
			&indexdomain.IndexComposition{},
			&indexmysql.HistoryPointModel{},
			&mddomain.Quote{},
			&mddomain.DailyClose{},
			&mddomain.DividendEvent{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Redis
	redisCache, err := cache.NewRedisCache(&cfg.Data.Redis, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}
	redisClient := redisCache.GetClient()

	// 6. Outbox & Kafka Producer
	kafkaProducer := kafka.NewProducer(&cfg.MessageQueue.Kafka, logger, metricsImpl)
	outboxMgr := outbox.NewManager(db.RawDB(), logger.Logger)
	pusher := func(ctx context.Context, topic, key string, payload []byte) error {
		return kafkaProducer.PublishToTopic(ctx, topic, []byte(key), payload)
	}
	outboxProcessor := outbox.NewProcessor(outboxMgr, pusher, 100, 2*time.Second)
	publisher := outbox.NewPublisher(outboxMgr)

	// 7. Market data module
	quoteRepo := mdmysql.NewQuoteRepository(db.RawDB())
	quoteReadRepo := mdredis.NewQuoteRedisRepository(redisClient)
	closeRepo := mdmysql.NewDailyCloseRepository(db.RawDB())
	dividendRepo := mdmysql.NewDividendRepository(db.RawDB())
	mdService := mdapplication.NewMarketDataService(quoteRepo, quoteReadRepo, closeRepo, dividendRepo, logger.Logger)

	mdHandler := mdconsumer.NewMarketDataEventHandler(mdService)

	priceCfg := cfg.MessageQueue.Kafka
	priceCfg.Topic = "market.price"
	if priceCfg.GroupID == "" {
		priceCfg.GroupID = "marketindex-group"
	}
	priceConsumer := kafka.NewConsumer(&priceCfg, logger, metricsImpl)
	mdHandler.SubscribePrices(context.Background(), priceConsumer)

	dividendCfg := cfg.MessageQueue.Kafka
	dividendCfg.Topic = "corporateaction.dividend"
	if dividendCfg.GroupID == "" {
		dividendCfg.GroupID = "marketindex-group"
	}
	dividendConsumer := kafka.NewConsumer(&dividendCfg, logger, metricsImpl)
	mdHandler.SubscribeDividends(context.Background(), dividendConsumer)

	// 8. Index module
	var holidays []string
	if *holidayList != "" {
		holidays = strings.Split(*holidayList, ",")
	}
	calendar, err := indexdomain.NewMarketCalendar(*exchangeTZ, *sessionOpen, *sessionClose, holidays)
	if err != nil {
		slog.Error("failed to build market calendar", "error", err)
		os.Exit(1)
	}

	indexRepo := indexmysql.NewIndexRepository(db.RawDB())
	compositionRepo := indexmysql.NewCompositionRepository(db.RawDB())
	historyRepo := indexmysql.NewHistoryRepository(db.RawDB())
	pointCache := indexredis.NewPointRedisRepository(redisClient)
	marketDataGateway := gateway.NewMarketDataGateway(mdService)

	calcService := application.NewIndexCalculationService(
		indexRepo, compositionRepo, historyRepo,
		marketDataGateway, marketDataGateway,
		publisher, pointCache, calendar, logger.Logger,
	)
	queryService := application.NewIndexQueryService(
		indexRepo, compositionRepo, historyRepo,
		marketDataGateway, calendar, pointCache, logger.Logger,
	)
	fillJob := application.NewHistoryFillJob(calcService, indexRepo, calendar, logger.Logger)

	// 9. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	httpHandler := httpserver.NewIndexHandler(calcService, queryService)
	httpHandler.RegisterRoutes(r.Group(""))

	// 10. Start
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		outboxProcessor.Start()
		<-ctx.Done()
		outboxProcessor.Stop()
		return nil
	})

	g.Go(func() error {
		fillJob.Start(ctx)
		return nil
	})

	addr := fmt.Sprintf(":%d", cfg.Server.HTTP.Port)
	server := &http.Server{Addr: addr, Handler: r}

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
