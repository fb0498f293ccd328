package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"probable-pancake/internal/advisor"
	"probable-pancake/internal/bot"
	"probable-pancake/internal/cache"
	"probable-pancake/internal/config"
	"probable-pancake/internal/db"
	"probable-pancake/internal/handler"
	"probable-pancake/internal/job"
	"probable-pancake/internal/macro"
	"probable-pancake/internal/ml/features"
	"probable-pancake/internal/ml/inference"
	"probable-pancake/internal/ml/predictions"
	"probable-pancake/internal/ml/registry"
	"probable-pancake/internal/ml/training"
	"probable-pancake/internal/provider"
	"probable-pancake/internal/repository"
	"probable-pancake/internal/service"
	"probable-pancake/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "probable-pancake/docs"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	initTracerFunc       = tracing.InitTracer
	newBarRepoFunc       = repository.NewBarRepository
	newDecisionRepoFunc  = repository.NewDecisionRepository
	newTradeRepoFunc     = repository.NewTradeRepository
	newBacktestRepoFunc  = repository.NewBacktestRepository
	newConvRepoFunc      = repository.NewConversationRepository
	newOandaProviderFunc = func(tracer trace.Tracer, cfg *config.Config) service.BarProvider {
		return provider.NewOandaProvider(tracer, cfg.OandaAPIKey, cfg.OandaBaseURL)
	}
	newFredProviderFunc = func(tracer trace.Tracer, cfg *config.Config) macro.SeriesReader {
		return provider.NewFredProvider(tracer, cfg.FredAPIKey)
	}
	newMarketDataServiceFunc = service.NewMarketDataService
	newDecisionServiceFunc   = service.NewDecisionService
	newOpenAIClientFunc      = advisor.NewOpenAIClient
	newAdvisorServiceFunc    = advisor.NewAdvisorService
	newDecisionPollerFunc    = job.NewDecisionPoller
	startDecisionPollerFunc  = func(p *job.DecisionPoller, ctx context.Context) { go p.Start(ctx) }
	newMacroRefreshJobFunc   = job.NewMacroRefreshJob
	startMacroJobFunc        = func(j *job.MacroRefreshJob, ctx context.Context) { go j.Start(ctx) }
	startTelegramBotFunc     = bot.StartTelegramBot
	newHandlerFunc           = handler.New
	newRouterFunc            = gin.Default
	setupSignalNotify        = signal.Notify
	waitForSignalFunc        = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc      = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc   = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Probable Pancake API
// @version         1.0
// @description     Single-pair FX decision engine with backtesting and OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg, err := loadConfigFunc()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repositories and run migrations
	barRepo := newBarRepoFunc(db.Pool, tracer)
	decisionRepo := newDecisionRepoFunc(db.Pool, tracer)
	tradeRepo := newTradeRepoFunc(db.Pool, tracer)
	backtestRepo := newBacktestRepoFunc(db.Pool, tracer)
	convRepo := newConvRepoFunc(db.Pool, tracer)
	macroRepo := macro.NewRepository(db.Pool, tracer)
	if db.Pool != nil {
		for name, migrate := range map[string]func(context.Context) error{
			"bars":      barRepo.RunMigrations,
			"decisions": decisionRepo.RunMigrations,
			"trades":    tradeRepo.RunMigrations,
			"backtests": backtestRepo.RunMigrations,
			"macro":     macroRepo.RunMigrations,
		} {
			if err := migrate(ctx); err != nil {
				log.Fatalf("failed to run %s migrations: %v", name, err)
			}
		}
	}

	// Market data from OANDA
	oanda := newOandaProviderFunc(tracer, cfg)
	marketData := newMarketDataServiceFunc(tracer, oanda, barRepo, cfg.Pair, cfg.Granularity)

	// Macro bias from FRED
	macroTTL := time.Duration(cfg.MacroRefreshSecs) * time.Second
	macroSvc := macro.NewService(tracer, newFredProviderFunc(tracer, cfg), macroRepo, cache.Client, macroTTL)

	// Live decision loop
	decisionService := newDecisionServiceFunc(tracer, marketData, decisionRepo, tradeRepo,
		macroSvc, nil, cache.Client, cfg)
	decisionService.Restore(ctx)

	// Advisor (optional)
	advisorSvc := buildAdvisor(tracer, cfg, decisionService, decisionRepo, tradeRepo, macroSvc, convRepo)

	// Telegram bot and push alerts
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	var advisorQ bot.Advisor
	if advisorSvc != nil {
		advisorQ = advisorSvc
	}
	if notifier := startTelegramBotFunc(decisionService, tradeRepo, decisionRepo, advisorQ); notifier != nil {
		decisionService.SetNotifier(notifier)
	}

	// Background jobs
	poller := newDecisionPollerFunc(tracer, decisionService, cfg.BarPollSecs)
	startDecisionPollerFunc(poller, ctx)
	macroJob := newMacroRefreshJobFunc(tracer, macroSvc, macroTTL)
	startMacroJobFunc(macroJob, ctx)

	// Auxiliary ML lane (optional)
	var mlService *service.MLService
	if cfg.MLEnabled {
		mlService = startMLLane(ctx, tracer, cfg, marketData, decisionRepo)
	}

	// Create handlers and routes
	h := newHandlerFunc(tracer, cfg.Pair, decisionService, decisionRepo, tradeRepo,
		backtestRepo, marketData, macroSvc)
	h.SetAPIKey(cfg.APIKey)
	if mlService != nil {
		h.SetPredictionReader(mlService)
		h.SetMLTrainingRunner(mlService)
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware("probable-pancake"))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Close any open exposure before the process dies.
	decisionService.FlattenAll(shutdownCtx, "shutdown")

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func buildAdvisor(
	tracer trace.Tracer,
	cfg *config.Config,
	status advisor.StatusQuerier,
	decisionRepo *repository.DecisionRepository,
	tradeRepo *repository.TradeRepository,
	macroSvc *macro.Service,
	convRepo *repository.ConversationRepository,
) *advisor.AdvisorService {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	llm := newOpenAIClientFunc(cfg.OpenAIAPIKey)
	svc := newAdvisorServiceFunc(tracer, llm, status, decisionRepo, tradeRepo,
		macroSvc, convRepo, cfg.Pair, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
	log.Println("advisor service enabled")
	return svc
}

// startMLLane wires the classifier lane: feature refresh + inference,
// outcome resolution, and the nightly training job.
func startMLLane(
	ctx context.Context,
	tracer trace.Tracer,
	cfg *config.Config,
	marketData *service.MarketDataService,
	decisionRepo *repository.DecisionRepository,
) *service.MLService {
	featureRepo := features.NewRepository(db.Pool, tracer)
	registryRepo := registry.NewRepository(db.Pool, tracer)
	predictionRepo := predictions.NewRepository(db.Pool, tracer)
	if db.Pool != nil {
		for name, migrate := range map[string]func(context.Context) error{
			"ml features":    featureRepo.RunMigrations,
			"ml registry":    registryRepo.RunMigrations,
			"ml predictions": predictionRepo.RunMigrations,
		} {
			if err := migrate(ctx); err != nil {
				log.Fatalf("failed to run %s migrations: %v", name, err)
			}
		}
	}

	trainSvc := training.NewService(tracer, featureRepo, registryRepo, training.Config{
		Pair:            cfg.Pair,
		Granularity:     cfg.Granularity,
		TrainWindowDays: cfg.MLTrainWindowDays,
		MinTrainSamples: cfg.MLMinTrainSamples,
	})
	inferSvc := inference.NewService(tracer, featureRepo, registryRepo, predictionRepo,
		decisionRepo, nil, inference.Config{
			Pair:           cfg.Pair,
			Granularity:    cfg.Granularity,
			TargetBars:     cfg.MLTargetBars,
			LongThreshold:  cfg.MLLongThreshold,
			ShortThreshold: cfg.MLShortThreshold,
		})

	mlService := service.NewMLService(tracer, marketData, features.NewEngine(nil),
		featureRepo, predictionRepo, trainSvc, inferSvc,
		cfg.Pair, cfg.Granularity, cfg.MLTargetBars)

	inferJob := job.NewMLFeatureInferenceJob(tracer, mlService,
		time.Duration(cfg.MLInferPollSecs)*time.Second)
	go inferJob.Start(ctx)
	resolveJob := job.NewMLOutcomeResolverJob(tracer, mlService,
		time.Duration(cfg.MLResolvePollSecs)*time.Second)
	go resolveJob.Start(ctx)
	trainJob := job.NewMLTrainingJob(tracer, mlService, cfg.MLTrainHourUTC)
	go trainJob.Start(ctx)

	log.Println("ML lane enabled")
	return mlService
}
