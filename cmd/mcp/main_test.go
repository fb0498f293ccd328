package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"probable-pancake/internal/config"
	"probable-pancake/internal/mcpserver"
	"probable-pancake/internal/repository"
	"probable-pancake/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrapStdio(t *testing.T) {
	restore := stubMCPDeps("stdio")
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func TestMainBootstrapHTTP(t *testing.T) {
	restore := stubMCPDeps("http")
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func stubMCPDeps(transport string) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitPostgres := initPostgresFunc
	origInitRedis := initRedisFunc
	origInitTracer := initTracerFunc
	origNewDecisionRepo := newDecisionRepoFunc
	origNewTradeRepo := newTradeRepoFunc
	origNewBacktestRepo := newBacktestRepoFunc
	origNewStatusReader := newStatusReaderFunc
	origNewMCPServer := newMCPServerFunc
	origRunStdio := runStdioFunc
	origStartHTTP := startHTTPServerFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() (*config.Config, error) {
		return &config.Config{
			Pair:               "USD_JPY",
			MCPTransport:       transport,
			MCPHTTPBind:        "127.0.0.1",
			MCPHTTPPort:        0,
			MCPRateLimitPerMin: 60,
			MacroRefreshSecs:   3600,
		}, nil
	}
	initPostgresFunc = func(context.Context) {}
	initRedisFunc = func(context.Context) {}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newDecisionRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.DecisionRepository {
		return nil
	}
	newTradeRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.TradeRepository {
		return nil
	}
	newBacktestRepoFunc = func(repository.PgxPool, trace.Tracer) *repository.BacktestRepository {
		return nil
	}
	newStatusReaderFunc = func(*redis.Client, string) *service.CachedStatusReader {
		return service.NewCachedStatusReader(nil, "USD_JPY")
	}
	newMCPServerFunc = func(tracer trace.Tracer, deps mcpserver.Deps) *mcp.Server {
		return mcpserver.NewServer(tracer, mcpserver.Deps{Pair: deps.Pair})
	}
	runStdioFunc = func(context.Context, *mcp.Server) error { return nil }
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initPostgresFunc = origInitPostgres
		initRedisFunc = origInitRedis
		initTracerFunc = origInitTracer
		newDecisionRepoFunc = origNewDecisionRepo
		newTradeRepoFunc = origNewTradeRepo
		newBacktestRepoFunc = origNewBacktestRepo
		newStatusReaderFunc = origNewStatusReader
		newMCPServerFunc = origNewMCPServer
		runStdioFunc = origRunStdio
		startHTTPServerFunc = origStartHTTP
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
	}
}
