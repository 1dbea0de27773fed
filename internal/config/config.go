package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every setting the API reads from the environment.
type Config struct {
	Port        string `env:"PORT,default=8080"`
	BaseURL     string `env:"BASE_URL,default=http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:3000"`
	SiteName    string `env:"SITE_NAME,default=ERAS Review"`

	// --- Database ---
	DBDSNPrimary  string `env:"DB_DSN_PRIMARY,required"`
	DBDSNReadOnly string `env:"DB_DSN_READONLY"`

	// --- Auth ---
	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTTTL    time.Duration `env:"JWT_TTL,default=72h"`

	// --- Third-party services (empty key = placeholder implementation) ---
	GeminiAPIKey        string `env:"GEMINI_API_KEY"`
	GeminiModel         string `env:"GEMINI_MODEL,default=gemini-1.5-flash"`
	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	ResendAPIKey        string `env:"RESEND_API_KEY"`
	EmailFrom           string `env:"EMAIL_FROM,default=ERAS Review <noreply@erasreview.local>"`
	AdminEmail          string `env:"ADMIN_EMAIL,default=admin@erasreview.local"`
	RedisURL            string `env:"REDIS_URL"`
	IndexNowKey         string `env:"INDEXNOW_KEY"`

	// --- Blog automation ---
	BlogAutogen    bool   `env:"BLOG_AUTOGEN,default=false"`
	BlogCron       string `env:"BLOG_CRON,default=0 9 * * *"`
	BlogTopicsFile string `env:"BLOG_TOPICS_FILE"`

	// --- Misc ---
	LogLevel       string  `env:"LOG_LEVEL,default=info"`
	LogFormat      string  `env:"LOG_FORMAT,default=text"`
	UploadDir      string  `env:"UPLOAD_DIR,default=./uploads"`
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=1"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=5"`

	// Comma-separated IPs or CIDRs allowed to set X-Forwarded-For. Empty trusts none.
	TrustedProxies string `env:"TRUSTED_PROXIES"`
}

// Load reads .env (if any) and decodes the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("could not find or load .env file, relying on system environment variables")
	}

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &cfg, nil
}

// PaymentsEnabled reports whether a real payment provider key is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}

// InsightsEnabled reports whether the admin AI assistant can run.
// It needs both an LLM key and the read-only database pool.
func (c *Config) InsightsEnabled() bool {
	return c.GeminiAPIKey != "" && c.DBDSNReadOnly != ""
}

// TrustedProxyList splits TrustedProxies, dropping blanks. Nil means the
// client IP is always the socket peer.
func (c *Config) TrustedProxyList() []string {
	var out []string
	for _, p := range strings.Split(c.TrustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
