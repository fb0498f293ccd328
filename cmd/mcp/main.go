package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"probable-pancake/internal/cache"
	"probable-pancake/internal/config"
	"probable-pancake/internal/db"
	"probable-pancake/internal/macro"
	"probable-pancake/internal/mcpserver"
	"probable-pancake/internal/repository"
	"probable-pancake/internal/service"
	"probable-pancake/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	loadEnvFunc         = godotenv.Load
	loadConfigFunc      = config.Load
	initPostgresFunc    = db.InitPostgres
	initRedisFunc       = cache.InitRedis
	initTracerFunc      = tracing.InitTracer
	newDecisionRepoFunc = repository.NewDecisionRepository
	newTradeRepoFunc    = repository.NewTradeRepository
	newBacktestRepoFunc = repository.NewBacktestRepository
	newMacroRepoFunc    = macro.NewRepository
	newStatusReaderFunc = service.NewCachedStatusReader
	newMCPServerFunc    = mcpserver.NewServer
	runStdioFunc        = func(ctx context.Context, server *mcp.Server) error {
		return server.Run(ctx, &mcp.StdioTransport{})
	}
	startHTTPServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
	setupSignalNotify   = ossignal.Notify
	waitForSignalFunc   = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	loadEnvFunc()
	cfg, err := loadConfigFunc()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	decisionRepo := newDecisionRepoFunc(db.Pool, tracer)
	tradeRepo := newTradeRepoFunc(db.Pool, tracer)
	backtestRepo := newBacktestRepoFunc(db.Pool, tracer)
	macroRepo := newMacroRepoFunc(db.Pool, tracer)

	// Read-only macro view: no FRED client, cache and repo only.
	macroSvc := macro.NewService(tracer, nil, macroRepo, cache.Client,
		time.Duration(cfg.MacroRefreshSecs)*time.Second)

	server := newMCPServerFunc(tracer, mcpserver.Deps{
		Pair:      cfg.Pair,
		Status:    newStatusReaderFunc(cache.Client, cfg.Pair),
		Decisions: decisionRepo,
		Trades:    tradeRepo,
		Backtests: backtestRepo,
		Macro:     macroSvc,
	})

	if cfg.MCPTransport == "http" || cfg.MCPHTTPEnabled {
		runHTTP(ctx, cfg, server)
		return
	}

	log.Println("MCP server serving on stdio")
	if err := runStdioFunc(ctx, server); err != nil {
		log.Printf("MCP stdio server stopped: %v", err)
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, server *mcp.Server) {
	handler := mcpserver.NewHTTPHandler(server, mcpserver.HTTPOptions{
		AuthToken:       cfg.MCPAuthToken,
		RateLimitPerMin: cfg.MCPRateLimitPerMin,
	})

	addr := fmt.Sprintf("%s:%d", cfg.MCPHTTPBind, cfg.MCPHTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
	}

	go func() {
		log.Printf("MCP server listening on %s", addr)
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Printf("MCP HTTP server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down MCP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("MCP server shutdown error: %v", err)
	}
	log.Println("MCP server exited")
}
