package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"probable-pancake/internal/domain"
)

const (
	ProfileConservative = "conservative"
	ProfileAggressive   = "aggressive"
)

type Config struct {
	Pair        string
	Granularity string
	Profile     string

	EMAFast      int
	EMASlow      int
	EMATrend     int
	HTFEMAPeriod int
	HTFRSIPeriod int
	RSIPeriod    int
	ATRPeriod    int

	ADXMin                float64
	H1RSILong             float64
	H1RSIShort            float64
	ATRMultiplierSL       float64
	RRRatio               float64
	SignalCooldownBars    int
	MinHoursBetweenTrades int
	CrossFreshBars        int
	BOSLookback           int
	ChopCeiling           float64
	ATRExpansionEnabled   bool

	TrailingStopEnabled bool
	TrailingStopStartRR float64
	TimeStopEnabled     bool
	TimeStopHours       int
	TimeStopMinRR       float64

	RiskPerTrade  float64
	MaxDailyLoss  float64
	WarmupBars    int
	InitialEquity float64
	MinUnits      int
	MaxUnits      int

	DatabaseURL      string
	RedisURL         string
	TelegramBotToken string
	APIKey           string

	OandaAPIKey      string
	OandaBaseURL     string
	FredAPIKey       string
	BarPollSecs      int
	MacroRefreshSecs int

	OpenAIAPIKey      string
	OpenAIModel       string
	AdvisorMaxHistory int

	SSHPort        int
	SSHHostKeyPath string

	MCPTransport          string
	MCPHTTPEnabled        bool
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRequestTimeoutSecs int
	MCPRateLimitPerMin    int

	MLEnabled         bool
	MLTargetBars      int
	MLTrainWindowDays int
	MLInferPollSecs   int
	MLResolvePollSecs int
	MLTrainHourUTC    int
	MLLongThreshold   float64
	MLShortThreshold  float64
	MLMinTrainSamples int
}

// Load reads the environment into a validated Config. Strategy keys fail
// hard on malformed or out-of-range values; infra keys keep the softer
// warn-and-default behavior so a bare shell can still boot a backtest.
func Load() (*Config, error) {
	r := &reader{}
	cfg := &Config{
		Pair:        r.stringVal("PAIR", domain.DefaultPair),
		Granularity: strings.ToUpper(r.stringVal("INTERVAL", domain.DefaultGranularity)),
		Profile:     strings.ToLower(r.stringVal("PROFILE", ProfileConservative)),

		EMAFast:      r.intVal("EMA_FAST", 9),
		EMASlow:      r.intVal("EMA_SLOW", 21),
		EMATrend:     r.intVal("EMA_TREND", 200),
		HTFEMAPeriod: r.intVal("HTF_EMA", 800),
		HTFRSIPeriod: r.intVal("HTF_RSI", 56),
		RSIPeriod:    r.intVal("RSI_PERIOD", 14),
		ATRPeriod:    r.intVal("ATR_PERIOD", 14),

		ADXMin:                r.floatVal("ADX_MIN", 22.0),
		H1RSILong:             r.floatVal("H1_RSI_LONG", 55),
		H1RSIShort:            r.floatVal("H1_RSI_SHORT", 45),
		ATRMultiplierSL:       r.floatVal("ATR_MULTIPLIER_SL", 2.1),
		RRRatio:               r.floatVal("RR_RATIO", 3.0),
		SignalCooldownBars:    r.intVal("SIGNAL_COOLDOWN_BARS", 48),
		MinHoursBetweenTrades: r.intVal("MIN_HOURS_BETWEEN_TRADES", 12),
		CrossFreshBars:        r.intVal("CROSS_FRESH_BARS", 24),
		BOSLookback:           r.intVal("BOS_LOOKBACK", 10),
		ChopCeiling:           r.floatVal("CHOP_CEILING", 62),
		ATRExpansionEnabled:   r.boolVal("ATR_EXPANSION_ENABLED", true),

		TrailingStopEnabled: r.boolVal("TRAILING_STOP_ENABLED", true),
		TrailingStopStartRR: r.floatVal("TRAILING_STOP_START_RR", 2.2),
		TimeStopEnabled:     r.boolVal("TIME_STOP_ENABLED", true),
		TimeStopHours:       r.intVal("TIME_STOP_HOURS", 8),
		TimeStopMinRR:       r.floatVal("TIME_STOP_MIN_RR", 1.5),

		RiskPerTrade:  r.floatVal("RISK_PER_TRADE", 0.01),
		MaxDailyLoss:  r.floatVal("MAX_DAILY_LOSS", 300),
		WarmupBars:    r.intVal("WARMUP_BARS", 500),
		InitialEquity: r.floatVal("INITIAL_EQUITY", 1000),
		MinUnits:      r.intVal("MIN_UNITS", 1),
		MaxUnits:      r.intVal("MAX_UNITS", 1_000_000),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		APIKey:           os.Getenv("API_KEY"),

		OandaAPIKey:      os.Getenv("OANDA_API_KEY"),
		OandaBaseURL:     r.stringVal("OANDA_BASE_URL", "https://api-fxpractice.oanda.com"),
		FredAPIKey:       os.Getenv("FRED_API_KEY"),
		BarPollSecs:      r.intVal("BAR_POLL_SECS", 60),
		MacroRefreshSecs: r.intVal("MACRO_REFRESH_SECS", 3600),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       r.stringVal("OPENAI_MODEL", "gpt-4o-mini"),
		AdvisorMaxHistory: r.intVal("ADVISOR_MAX_HISTORY", 20),

		SSHPort:        r.intVal("SSH_PORT", 2222),
		SSHHostKeyPath: r.stringVal("SSH_HOST_KEY_PATH", ".ssh/term_host_key"),

		MCPAuthToken:          os.Getenv("MCP_AUTH_TOKEN"),
		MCPHTTPEnabled:        r.boolVal("MCP_HTTP_ENABLED", false),
		MCPHTTPBind:           r.stringVal("MCP_HTTP_BIND", "127.0.0.1"),
		MCPHTTPPort:           r.intVal("MCP_HTTP_PORT", 8090),
		MCPRequestTimeoutSecs: r.intVal("MCP_REQUEST_TIMEOUT_SECS", 5),
		MCPRateLimitPerMin:    r.intVal("MCP_RATE_LIMIT_PER_MIN", 60),

		MLEnabled:         r.boolVal("ML_ENABLED", false),
		MLTargetBars:      r.intVal("ML_TARGET_BARS", 16),
		MLTrainWindowDays: r.intVal("ML_TRAIN_WINDOW_DAYS", 90),
		MLInferPollSecs:   r.intVal("ML_INFER_POLL_SECS", 900),
		MLResolvePollSecs: r.intVal("ML_RESOLVE_POLL_SECS", 1800),
		MLTrainHourUTC:    r.intVal("ML_TRAIN_HOUR_UTC", 0),
		MLLongThreshold:   r.floatVal("ML_LONG_THRESHOLD", 0.55),
		MLShortThreshold:  r.floatVal("ML_SHORT_THRESHOLD", 0.45),
		MLMinTrainSamples: r.intVal("ML_MIN_TRAIN_SAMPLES", 1000),
	}
	if r.err != nil {
		return nil, r.err
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, advisor will be disabled")
	}
	if cfg.FredAPIKey == "" {
		log.Println("Warning: FRED_API_KEY not set, macro bias will be neutral")
	}
	if cfg.WarmupBars < 400 {
		log.Printf("Warning: WARMUP_BARS=%d is below the reference minimum of 400", cfg.WarmupBars)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Pair) == "" {
		return fmt.Errorf("PAIR must not be empty")
	}
	if !domain.ValidGranularity(c.Granularity) {
		return fmt.Errorf("INTERVAL: unsupported granularity %q", c.Granularity)
	}
	if c.Profile != ProfileConservative && c.Profile != ProfileAggressive {
		return fmt.Errorf("PROFILE must be %q or %q, got %q", ProfileConservative, ProfileAggressive, c.Profile)
	}
	for _, p := range []struct {
		key string
		val int
	}{
		{"EMA_FAST", c.EMAFast},
		{"EMA_SLOW", c.EMASlow},
		{"EMA_TREND", c.EMATrend},
		{"HTF_EMA", c.HTFEMAPeriod},
		{"HTF_RSI", c.HTFRSIPeriod},
		{"RSI_PERIOD", c.RSIPeriod},
		{"ATR_PERIOD", c.ATRPeriod},
		{"CROSS_FRESH_BARS", c.CrossFreshBars},
		{"BOS_LOOKBACK", c.BOSLookback},
		{"TIME_STOP_HOURS", c.TimeStopHours},
		{"WARMUP_BARS", c.WarmupBars},
		{"MIN_UNITS", c.MinUnits},
	} {
		if p.val < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", p.key, p.val)
		}
	}
	if c.EMAFast >= c.EMASlow || c.EMASlow >= c.EMATrend {
		return fmt.Errorf("EMA periods must satisfy fast < slow < trend, got %d/%d/%d", c.EMAFast, c.EMASlow, c.EMATrend)
	}
	if c.SignalCooldownBars < 0 || c.MinHoursBetweenTrades < 0 {
		return fmt.Errorf("cooldown settings must be >= 0")
	}
	for _, p := range []struct {
		key string
		val float64
	}{
		{"ADX_MIN", c.ADXMin},
		{"ATR_MULTIPLIER_SL", c.ATRMultiplierSL},
		{"RR_RATIO", c.RRRatio},
		{"TRAILING_STOP_START_RR", c.TrailingStopStartRR},
		{"MAX_DAILY_LOSS", c.MaxDailyLoss},
		{"INITIAL_EQUITY", c.InitialEquity},
	} {
		if p.val <= 0 {
			return fmt.Errorf("%s must be > 0, got %v", p.key, p.val)
		}
	}
	if c.TimeStopMinRR < 0 {
		return fmt.Errorf("TIME_STOP_MIN_RR must be >= 0, got %v", c.TimeStopMinRR)
	}
	if c.H1RSILong <= 0 || c.H1RSILong >= 100 || c.H1RSIShort <= 0 || c.H1RSIShort >= 100 {
		return fmt.Errorf("H1 RSI thresholds must be inside (0, 100)")
	}
	if c.H1RSIShort >= c.H1RSILong {
		return fmt.Errorf("H1_RSI_SHORT must be below H1_RSI_LONG, got %v >= %v", c.H1RSIShort, c.H1RSILong)
	}
	if c.ChopCeiling <= 0 || c.ChopCeiling > 100 {
		return fmt.Errorf("CHOP_CEILING must be inside (0, 100], got %v", c.ChopCeiling)
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return fmt.Errorf("RISK_PER_TRADE must be inside (0, 1], got %v", c.RiskPerTrade)
	}
	if c.MaxUnits < c.MinUnits {
		return fmt.Errorf("MAX_UNITS must be >= MIN_UNITS, got %d < %d", c.MaxUnits, c.MinUnits)
	}
	if c.MLLongThreshold <= 0 || c.MLLongThreshold >= 1 || c.MLShortThreshold <= 0 || c.MLShortThreshold >= 1 {
		return fmt.Errorf("ML thresholds must be inside (0, 1)")
	}
	if c.MLShortThreshold >= c.MLLongThreshold {
		return fmt.Errorf("ML_SHORT_THRESHOLD must be below ML_LONG_THRESHOLD")
	}
	if c.MLTrainHourUTC < 0 || c.MLTrainHourUTC > 23 {
		return fmt.Errorf("ML_TRAIN_HOUR_UTC must be inside [0, 23], got %d", c.MLTrainHourUTC)
	}
	return nil
}

func (c *Config) Aggressive() bool {
	return c.Profile == ProfileAggressive
}

type reader struct {
	err error
}

func (r *reader) fail(key, value, reason string) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %s %q", key, reason, value)
	}
}

func (r *reader) stringVal(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func (r *reader) boolVal(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if strings.EqualFold(v, "true") {
		return true
	}
	if strings.EqualFold(v, "false") {
		return false
	}
	r.fail(key, v, "expected true or false, got")
	return def
}

func (r *reader) intVal(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.ReplaceAll(v, "_", ""))
	if err != nil {
		r.fail(key, v, "invalid integer")
		return def
	}
	return n
}

func (r *reader) floatVal(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, "invalid number")
		return def
	}
	return n
}
