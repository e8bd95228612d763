// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, database paths, rate limiting, observability, and every tunable of
// the scheduling engine (grace periods, escalation thresholds, sweep cadence),
// so that nothing negotiation-critical hides in a literal.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-scheduling-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BlackoutRange is a yearly recurring date range during which no meeting
// times are proposed. Bounds are inclusive month/day pairs and may wrap the
// year end (e.g. Dec 20 through Jan 2).
type BlackoutRange struct {
	StartMonth time.Month
	StartDay   int
	EndMonth   time.Month
	EndDay     int
}

// Contains reports whether t's calendar date falls inside the range.
func (b BlackoutRange) Contains(t time.Time) bool {
	cur := int(t.Month())*100 + t.Day()
	lo := int(b.StartMonth)*100 + b.StartDay
	hi := int(b.EndMonth)*100 + b.EndDay
	if lo <= hi {
		return cur >= lo && cur <= hi
	}
	return cur >= lo || cur <= hi
}

// SchedulingConfig holds the negotiation-engine tunables. Whether some of
// these should vary per meeting type or counterparty tier is an open product
// question, which is why they live here instead of in code.
type SchedulingConfig struct {
	// LookaheadDays sizes the grounding window and candidate-time search.
	LookaheadDays int // SCHED_LOOKAHEAD_DAYS, default 21
	// ProposeCount is how many candidate times each outreach offers.
	ProposeCount int // SCHED_PROPOSE_COUNT, default 3
	// MinConfidence is the interpreter confidence floor; anything below is
	// held for human review instead of acted on.
	MinConfidence float64 // SCHED_MIN_CONFIDENCE, default 0.55
	// MaxAttempts caps automated outreach messages per request.
	MaxAttempts int // SCHED_MAX_ATTEMPTS, default 4

	// FollowUpDelay spaces automated follow-ups on silent threads.
	FollowUpDelay time.Duration // SCHED_FOLLOW_UP_DELAY, default 72h
	// ReminderLead is how long before a confirmed meeting the reminder goes out.
	ReminderLead time.Duration // SCHED_REMINDER_LEAD, default 24h

	// NoShowGrace is how long past the scheduled time we wait before calling
	// a confirmed meeting a no-show.
	NoShowGrace time.Duration // SCHED_NO_SHOW_GRACE, default 30m
	// ReengageDelay is the wait before the automatic first-no-show follow-up.
	ReengageDelay time.Duration // SCHED_REENGAGE_DELAY, default 4h
	// PauseDuration is the outreach pause applied at the third no-show.
	PauseDuration time.Duration // SCHED_PAUSE_DURATION, default 168h
	// EscalateAt is the no-show count that routes to a human (no auto-send).
	EscalateAt int // SCHED_ESCALATE_AT, default 2
	// PauseAt is the no-show count that pauses outreach.
	PauseAt int // SCHED_PAUSE_AT, default 3
	// CancelAt is the no-show count that cancels the request outright.
	CancelAt int // SCHED_CANCEL_AT, default 4

	// Blackouts are recurring date ranges excluded from slot proposals.
	Blackouts []BlackoutRange // SCHED_BLACKOUTS, default "12-20:01-02"

	// SweepBatchSize bounds how many due requests one sweep processes.
	SweepBatchSize int // SCHED_SWEEP_BATCH, default 25
	// SweepCron is a 5-field cron expression driving the periodic sweep.
	SweepCron string // SCHED_SWEEP_CRON, default "*/5 * * * *"

	// Provider timeouts; on expiry the operation degrades (unknown/unclear)
	// rather than blocking the negotiation.
	AvailabilityTimeout time.Duration // SCHED_AVAILABILITY_TIMEOUT, default 10s
	InterpreterTimeout  time.Duration // SCHED_INTERPRETER_TIMEOUT, default 20s
	SendTimeout         time.Duration // SCHED_SEND_TIMEOUT, default 15s
}

// InterpreterConfig points at the AI gateway used for reply classification.
// With an empty endpoint the deterministic heuristic classifier runs instead.
type InterpreterConfig struct {
	Endpoint string // INTERPRETER_ENDPOINT
	APIKey   string // INTERPRETER_API_KEY
}

// ProvidersConfig points at the gateways the engine calls for free/busy
// data, mail delivery, and calendar booking. Any empty URL switches that
// adapter to its development fallback.
type ProvidersConfig struct {
	AvailabilityURL string // PROVIDER_AVAILABILITY_URL
	SendURL         string // PROVIDER_SEND_URL
	BookURL         string // PROVIDER_BOOK_URL
	APIKey          string // PROVIDER_API_KEY
}

// SlackConfig configures the attention-item notifier. Empty token disables it.
type SlackConfig struct {
	BotToken  string // SLACK_BOT_TOKEN (xoxb-...)
	ChannelID string // SLACK_CHANNEL_ID
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	ReceiptTTL time.Duration // how long an inbound message ID stays deduplicated

	// Engine
	Scheduling  SchedulingConfig
	Interpreter InterpreterConfig
	Providers   ProvidersConfig
	Slack       SlackConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "scheduling.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		ReceiptTTL: getdur("RECEIPT_TTL", 7*24*time.Hour),

		// Engine
		Scheduling: SchedulingConfig{
			LookaheadDays:       getint("SCHED_LOOKAHEAD_DAYS", 21),
			ProposeCount:        getint("SCHED_PROPOSE_COUNT", 3),
			MinConfidence:       getfloat("SCHED_MIN_CONFIDENCE", 0.55),
			MaxAttempts:         getint("SCHED_MAX_ATTEMPTS", 4),
			FollowUpDelay:       getdur("SCHED_FOLLOW_UP_DELAY", 72*time.Hour),
			ReminderLead:        getdur("SCHED_REMINDER_LEAD", 24*time.Hour),
			NoShowGrace:         getdur("SCHED_NO_SHOW_GRACE", 30*time.Minute),
			ReengageDelay:       getdur("SCHED_REENGAGE_DELAY", 4*time.Hour),
			PauseDuration:       getdur("SCHED_PAUSE_DURATION", 7*24*time.Hour),
			EscalateAt:          getint("SCHED_ESCALATE_AT", 2),
			PauseAt:             getint("SCHED_PAUSE_AT", 3),
			CancelAt:            getint("SCHED_CANCEL_AT", 4),
			SweepBatchSize:      getint("SCHED_SWEEP_BATCH", 25),
			SweepCron:           getenv("SCHED_SWEEP_CRON", "*/5 * * * *"),
			AvailabilityTimeout: getdur("SCHED_AVAILABILITY_TIMEOUT", 10*time.Second),
			InterpreterTimeout:  getdur("SCHED_INTERPRETER_TIMEOUT", 20*time.Second),
			SendTimeout:         getdur("SCHED_SEND_TIMEOUT", 15*time.Second),
		},
		Interpreter: InterpreterConfig{
			Endpoint: getenv("INTERPRETER_ENDPOINT", ""),
			APIKey:   getenv("INTERPRETER_API_KEY", ""),
		},
		Providers: ProvidersConfig{
			AvailabilityURL: getenv("PROVIDER_AVAILABILITY_URL", ""),
			SendURL:         getenv("PROVIDER_SEND_URL", ""),
			BookURL:         getenv("PROVIDER_BOOK_URL", ""),
			APIKey:          getenv("PROVIDER_API_KEY", ""),
		},
		Slack: SlackConfig{
			BotToken:  getenv("SLACK_BOT_TOKEN", ""),
			ChannelID: getenv("SLACK_CHANNEL_ID", ""),
		},

		// Observability
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-scheduling-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// Validation
	if cfg.Port == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.ReceiptTTL <= 0 {
		return cfg, errors.New("RECEIPT_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	s := cfg.Scheduling
	if s.LookaheadDays < 7 {
		return cfg, errors.New("SCHED_LOOKAHEAD_DAYS must be >= 7")
	}
	if s.ProposeCount < 1 || s.ProposeCount > 10 {
		return cfg, errors.New("SCHED_PROPOSE_COUNT must be in [1,10]")
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return cfg, errors.New("SCHED_MIN_CONFIDENCE must be in [0,1]")
	}
	if s.MaxAttempts < 1 {
		return cfg, errors.New("SCHED_MAX_ATTEMPTS must be >= 1")
	}
	if s.NoShowGrace <= 0 || s.ReengageDelay <= 0 || s.PauseDuration <= 0 {
		return cfg, errors.New("no-show durations must be positive")
	}
	if !(s.EscalateAt < s.PauseAt && s.PauseAt < s.CancelAt) {
		return cfg, errors.New("no-show ladder thresholds must be strictly increasing")
	}
	if s.EscalateAt < 1 {
		return cfg, errors.New("SCHED_ESCALATE_AT must be >= 1")
	}
	if s.SweepBatchSize < 1 {
		return cfg, errors.New("SCHED_SWEEP_BATCH must be >= 1")
	}
	if strings.TrimSpace(s.SweepCron) == "" {
		return cfg, errors.New("SCHED_SWEEP_CRON must not be empty")
	}

	blackouts, err := parseBlackouts(getenv("SCHED_BLACKOUTS", "12-20:01-02"))
	if err != nil {
		return cfg, fmt.Errorf("SCHED_BLACKOUTS: %w", err)
	}
	cfg.Scheduling.Blackouts = blackouts

	return cfg, nil
}

// parseBlackouts parses comma-separated "MM-DD:MM-DD" ranges.
func parseBlackouts(s string) ([]BlackoutRange, error) {
	var out []BlackoutRange
	for _, part := range splitCSV(s) {
		bounds := strings.Split(part, ":")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("range %q must be MM-DD:MM-DD", part)
		}
		sm, sd, err := parseMonthDay(bounds[0])
		if err != nil {
			return nil, err
		}
		em, ed, err := parseMonthDay(bounds[1])
		if err != nil {
			return nil, err
		}
		out = append(out, BlackoutRange{StartMonth: sm, StartDay: sd, EndMonth: em, EndDay: ed})
	}
	return out, nil
}

func parseMonthDay(s string) (time.Month, int, error) {
	var m, d int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d-%d", &m, &d); err != nil {
		return 0, 0, fmt.Errorf("bad month-day %q", s)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return 0, 0, fmt.Errorf("month-day %q out of range", s)
	}
	return time.Month(m), d, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
