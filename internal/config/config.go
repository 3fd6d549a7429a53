// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, trial
// metering, magic-link and billing integration, and observability. It also
// builds the immutable per-character catalogue injected at process start.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/topfivefriends/companion-accounts/internal/domain"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "companion-accounts")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StripeConfig defines payment-provider integration settings.
type StripeConfig struct {
	SecretKey     string // STRIPE_SECRET_KEY
	WebhookSecret string // STRIPE_WEBHOOK_SECRET
	SuccessURL    string // CHECKOUT_SUCCESS_URL
	CancelURL     string // CHECKOUT_CANCEL_URL
}

// CharacterInfo is the static, process-wide description of one persona.
// Catalogue entries are built once at load time and never mutated.
type CharacterInfo struct {
	// DisplayName is the persona's full name, used as the email sender.
	DisplayName string
	// LifeDomain is the persona's focus area shown in marketing copy.
	LifeDomain string
	// BotToken authenticates outbound Telegram messages for this persona.
	// Empty means the persona cannot receive bump messages.
	BotToken string
	// BackendURL is the base URL of the persona's chat backend, target of
	// the best-effort /billing/activate callback. Empty disables callbacks.
	BackendURL string
	// BumpMessage is the persona-voiced trial reactivation text.
	BumpMessage string
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
	APIBasePath string // base path for API routes ("/" keeps worker-era paths)

	// Store
	DBPath string // SQLite path

	// Trial metering
	TrialAllowance int           // starting message allowance per (chat, character)
	TrialBumpTopUp int           // one-time reactivation allowance
	TrialBumpAfter time.Duration // minimum age of exhaustion before a bump
	SweepInterval  time.Duration // how often the reactivation sweep runs

	// Magic link
	LinkTTL          time.Duration // pending link lifetime
	MagicLinkBaseURL string        // public base for /magic/{token} links

	// Outbound email (Resend)
	ResendAPIKey    string
	EmailFromDomain string // e.g. "topfivefriends.com"

	// Payment provider
	Stripe          StripeConfig
	WebhookEventTTL time.Duration // retention for the processed-event ledger

	// Outbound notification discipline
	NotifyTimeout time.Duration // per-call cap on best-effort notifications

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig

	// Characters is the immutable persona catalogue keyed by the enum.
	Characters map[domain.Character]CharacterInfo
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
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/")),

		// Store
		DBPath: getenv("DB_PATH", "accounts.db"),

		// Trial metering
		TrialAllowance: getint("TRIAL_ALLOWANCE", 25),
		TrialBumpTopUp: getint("TRIAL_BUMP_TOPUP", 10),
		TrialBumpAfter: getdur("TRIAL_BUMP_AFTER", 24*time.Hour),
		SweepInterval:  getdur("SWEEP_INTERVAL", time.Hour),

		// Magic link
		LinkTTL:          getdur("LINK_TTL", 24*time.Hour),
		MagicLinkBaseURL: strings.TrimRight(getenv("MAGIC_LINK_BASE_URL", "https://topfivefriends.com"), "/"),

		// Outbound email
		ResendAPIKey:    getenv("RESEND_API_KEY", ""),
		EmailFromDomain: getenv("EMAIL_FROM_DOMAIN", "topfivefriends.com"),

		// Payment provider
		Stripe: StripeConfig{
			SecretKey:     getenv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getenv("CHECKOUT_SUCCESS_URL", "https://topfivefriends.com/welcome"),
			CancelURL:     getenv("CHECKOUT_CANCEL_URL", "https://topfivefriends.com/plans"),
		},
		WebhookEventTTL: getdur("WEBHOOK_EVENT_TTL", 72*time.Hour),

		// Outbound notification discipline
		NotifyTimeout: getdur("NOTIFY_TIMEOUT", 10*time.Second),

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

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "companion-accounts"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},

		Characters: loadCharacters(),
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
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
	if cfg.TrialAllowance < 1 {
		return cfg, errors.New("TRIAL_ALLOWANCE must be >= 1")
	}
	if cfg.TrialBumpTopUp < 1 {
		return cfg, errors.New("TRIAL_BUMP_TOPUP must be >= 1")
	}
	if cfg.TrialBumpAfter <= 0 || cfg.SweepInterval <= 0 {
		return cfg, errors.New("TRIAL_BUMP_AFTER and SWEEP_INTERVAL must be positive durations")
	}
	if cfg.LinkTTL <= 0 {
		return cfg, errors.New("LINK_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.MagicLinkBaseURL) == "" {
		return cfg, errors.New("MAGIC_LINK_BASE_URL must not be empty")
	}
	if cfg.WebhookEventTTL <= 0 {
		return cfg, errors.New("WEBHOOK_EVENT_TTL must be > 0")
	}
	if cfg.NotifyTimeout <= 0 {
		return cfg, errors.New("NOTIFY_TIMEOUT must be > 0")
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
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// characterSeed is the static portion of a catalogue entry; secrets and URLs
// come from the environment at load time.
type characterSeed struct {
	displayName string
	lifeDomain  string
	bumpMessage string
}

var characterSeeds = map[domain.Character]characterSeed{
	domain.CharacterSadie: {
		displayName: "Sadie Hartley",
		lifeDomain:  "Fun & Play",
		bumpMessage: "Hey stranger! Miss me? 10 more on the house. Let's play.",
	},
	domain.CharacterCole: {
		displayName: "Cole Mercer",
		lifeDomain:  "Health & Fitness",
		bumpMessage: "You went quiet on me. That's fine - but I'm not done with you yet. 10 more. Let's see what you're made of.",
	},
	domain.CharacterNora: {
		displayName: "Nora Vance",
		lifeDomain:  "Wealth & Finance",
		bumpMessage: "I'll float you 10 more. Consider it a small investment in figuring out if I'm worth it.",
	},
	domain.CharacterElliott: {
		displayName: "Elliott Sayer",
		lifeDomain:  "Mind & Clarity",
		bumpMessage: "Noticed you stepped back. That's usually when the real work starts. Come back. 10 more, no strings.",
	},
	domain.CharacterClara: {
		displayName: "Clara Stone",
		lifeDomain:  "Spirit & Presence",
		bumpMessage: "Sometimes we need space before we're ready. I'm here when you are. 10 more.",
	},
	domain.CharacterSean: {
		displayName: "Sean Brennan",
		lifeDomain:  "Relationships",
		bumpMessage: "Look, relationships take time to build. 10 more messages - let's keep going.",
	},
}

// loadCharacters builds the immutable persona catalogue, combining the static
// seeds with per-character environment settings (<NAME>_BOT_TOKEN, <NAME>_URL).
func loadCharacters() map[domain.Character]CharacterInfo {
	out := make(map[domain.Character]CharacterInfo, len(characterSeeds))
	for _, c := range domain.AllCharacters() {
		seed := characterSeeds[c]
		prefix := strings.ToUpper(c.String())
		out[c] = CharacterInfo{
			DisplayName: seed.displayName,
			LifeDomain:  seed.lifeDomain,
			BumpMessage: seed.bumpMessage,
			BotToken:    getenv(fmt.Sprintf("%s_BOT_TOKEN", prefix), ""),
			BackendURL:  strings.TrimRight(getenv(fmt.Sprintf("%s_URL", prefix), ""), "/"),
		}
	}
	return out
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
