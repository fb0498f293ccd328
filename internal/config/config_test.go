package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	clearStrategyEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.Pair != "USD_JPY" || cfg.Granularity != "M15" {
		t.Fatalf("unexpected instrument defaults: %s %s", cfg.Pair, cfg.Granularity)
	}
	if cfg.Profile != ProfileConservative {
		t.Fatalf("expected conservative default profile, got %s", cfg.Profile)
	}
	if cfg.EMAFast != 9 || cfg.EMASlow != 21 || cfg.EMATrend != 200 {
		t.Fatalf("unexpected EMA defaults: %d/%d/%d", cfg.EMAFast, cfg.EMASlow, cfg.EMATrend)
	}
	if cfg.ATRMultiplierSL != 2.1 || cfg.RRRatio != 3.0 {
		t.Fatalf("unexpected stop defaults: %v %v", cfg.ATRMultiplierSL, cfg.RRRatio)
	}
	if cfg.SignalCooldownBars != 48 || cfg.MinHoursBetweenTrades != 12 {
		t.Fatalf("unexpected cooldown defaults: %d %d", cfg.SignalCooldownBars, cfg.MinHoursBetweenTrades)
	}
	if cfg.WarmupBars != 500 || cfg.InitialEquity != 1000 {
		t.Fatalf("unexpected replay defaults: %d %v", cfg.WarmupBars, cfg.InitialEquity)
	}
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if !cfg.TrailingStopEnabled || !cfg.TimeStopEnabled || !cfg.ATRExpansionEnabled {
		t.Fatal("expected exit management toggles on by default")
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearStrategyEnv(t)
	t.Setenv("PROFILE", "aggressive")
	t.Setenv("EMA_FAST", "12")
	t.Setenv("EMA_SLOW", "26")
	t.Setenv("RR_RATIO", "2.5")
	t.Setenv("RISK_PER_TRADE", "0.02")
	t.Setenv("MAX_UNITS", "250_000")
	t.Setenv("TRAILING_STOP_ENABLED", "false")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	if !cfg.Aggressive() {
		t.Fatal("expected aggressive profile")
	}
	if cfg.EMAFast != 12 || cfg.EMASlow != 26 {
		t.Fatalf("unexpected EMA overrides: %d/%d", cfg.EMAFast, cfg.EMASlow)
	}
	if cfg.RRRatio != 2.5 || cfg.RiskPerTrade != 0.02 {
		t.Fatalf("unexpected risk overrides: %v %v", cfg.RRRatio, cfg.RiskPerTrade)
	}
	if cfg.MaxUnits != 250000 {
		t.Fatalf("underscore separators should parse, got %d", cfg.MaxUnits)
	}
	if cfg.TrailingStopEnabled {
		t.Fatal("expected trailing stop disabled")
	}
	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected infra config: %+v", cfg)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	clearStrategyEnv(t)
	t.Setenv("EMA_FAST", "fast")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "EMA_FAST") {
		t.Fatalf("expected EMA_FAST parse error, got %v", err)
	}

	clearStrategyEnv(t)
	t.Setenv("TIME_STOP_ENABLED", "yes")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TIME_STOP_ENABLED") {
		t.Fatalf("expected TIME_STOP_ENABLED parse error, got %v", err)
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
		want  string
	}{
		{"PROFILE", "turbo", "PROFILE"},
		{"EMA_FAST", "50", "fast < slow"},
		{"RISK_PER_TRADE", "1.5", "RISK_PER_TRADE"},
		{"CHOP_CEILING", "0", "CHOP_CEILING"},
		{"H1_RSI_SHORT", "70", "H1_RSI_SHORT"},
		{"INTERVAL", "M42", "INTERVAL"},
		{"MAX_UNITS", "0", "MAX_UNITS"},
		{"ATR_MULTIPLIER_SL", "-2", "ATR_MULTIPLIER_SL"},
	}
	for _, tc := range cases {
		clearStrategyEnv(t)
		t.Setenv(tc.key, tc.value)
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s=%s: expected error containing %q, got %v", tc.key, tc.value, tc.want, err)
		}
	}
}

func clearStrategyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PAIR", "INTERVAL", "PROFILE",
		"EMA_FAST", "EMA_SLOW", "EMA_TREND", "HTF_EMA", "HTF_RSI",
		"RSI_PERIOD", "ATR_PERIOD", "ADX_MIN", "H1_RSI_LONG", "H1_RSI_SHORT",
		"ATR_MULTIPLIER_SL", "RR_RATIO", "SIGNAL_COOLDOWN_BARS",
		"MIN_HOURS_BETWEEN_TRADES", "CROSS_FRESH_BARS", "BOS_LOOKBACK",
		"CHOP_CEILING", "ATR_EXPANSION_ENABLED",
		"TRAILING_STOP_ENABLED", "TRAILING_STOP_START_RR",
		"TIME_STOP_ENABLED", "TIME_STOP_HOURS", "TIME_STOP_MIN_RR",
		"RISK_PER_TRADE", "MAX_DAILY_LOSS", "WARMUP_BARS", "INITIAL_EQUITY",
		"MIN_UNITS", "MAX_UNITS",
		"DATABASE_URL", "REDIS_URL", "TELEGRAM_BOT_TOKEN", "OPENAI_API_KEY",
		"FRED_API_KEY", "OANDA_API_KEY",
	} {
		t.Setenv(key, "")
	}
}
