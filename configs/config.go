package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Dispatch struct {
	Schedule        string
	BatchSize       int
	Workers         int
	Lease           time.Duration
	CallTimeout     time.Duration
	RefreshMargin   time.Duration
	RetryAttempts   int
	RetryInitial    time.Duration
	RetryMax        time.Duration
	InstagramPoll   time.Duration
	InstagramPolls  int
	RecordAttempts  int
	ReconcileEvery  string
	TokenRefreshJob string
}

type Alerts struct {
	Region     string
	From       string
	Recipients []string
}

// Endpoints can be overridden to point the platform clients at a sandbox.
type Endpoints struct {
	GoogleToken    string
	YoutubeAPI     string
	InstagramOAuth string
	InstagramGraph string
	FacebookGraph  string
	TiktokAPI      string
}

type Config struct {
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	FacebookClientID      string
	FacebookClientSecret  string
	FacebookRedirectURI   string
	TiktokClientKey       string
	TiktokClientSecret    string
	TiktokRedirectURI     string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	ListenAddr            string
	R2                    R2
	SecretKey             string
	CookieName            string
	LogLevel              string
	LogFile               string
	OTLPEndpoint          string
	Dispatch              Dispatch
	Alerts                Alerts
	Endpoints             Endpoints
}

// ConfigError reports settings the process cannot run without.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration incomplete: missing %s", strings.Join(e.Missing, ", "))
}

func LoadConfig() *Config {
	return &Config{
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		FacebookClientID:      getEnv("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret:  getEnv("FACEBOOK_CLIENT_SECRET", ""),
		FacebookRedirectURI:   getEnv("FACEBOOK_REDIRECT_URI", ""),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokRedirectURI:     getEnv("TIKTOK_REDIRECT_URI", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		ListenAddr:            getEnv("LISTEN_ADDR", ":3000"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:    getEnv("SECRET_KEY", ""),
		CookieName:   getEnv("COOKIE_NAME", "postdispatch_session"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFile:      getEnv("LOG_FILE", ""),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Dispatch: Dispatch{
			Schedule:        getEnv("DISPATCH_SCHEDULE", "@every 1m"),
			BatchSize:       getEnvInt("DISPATCH_BATCH_SIZE", 100),
			Workers:         getEnvInt("DISPATCH_WORKERS", 4),
			Lease:           getEnvDuration("DISPATCH_LEASE", 15*time.Minute),
			CallTimeout:     getEnvDuration("DISPATCH_CALL_TIMEOUT", 2*time.Minute),
			RefreshMargin:   getEnvDuration("DISPATCH_REFRESH_MARGIN", 300*time.Second),
			RetryAttempts:   getEnvInt("DISPATCH_RETRY_ATTEMPTS", 3),
			RetryInitial:    getEnvDuration("DISPATCH_RETRY_INITIAL", 2*time.Second),
			RetryMax:        getEnvDuration("DISPATCH_RETRY_MAX", 30*time.Second),
			InstagramPoll:   getEnvDuration("INSTAGRAM_CONTAINER_POLL", 5*time.Second),
			InstagramPolls:  getEnvInt("INSTAGRAM_CONTAINER_POLLS", 24),
			RecordAttempts:  getEnvInt("DISPATCH_RECORD_ATTEMPTS", 3),
			ReconcileEvery:  getEnv("RECONCILE_SCHEDULE", "@every 1m"),
			TokenRefreshJob: getEnv("TOKEN_REFRESH_SCHEDULE", "@every 00h10m00s"),
		},
		Alerts: Alerts{
			Region:     getEnv("ALERT_SES_REGION", ""),
			From:       getEnv("ALERT_FROM", ""),
			Recipients: getEnvList("ALERT_RECIPIENTS"),
		},
		Endpoints: Endpoints{
			GoogleToken:    getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			YoutubeAPI:     getEnv("YOUTUBE_API_URL", ""),
			InstagramOAuth: getEnv("INSTAGRAM_OAUTH_URL", "https://api.instagram.com"),
			InstagramGraph: getEnv("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com"),
			FacebookGraph:  getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com"),
			TiktokAPI:      getEnv("TIKTOK_API_URL", "https://open.tiktokapis.com"),
		},
	}
}

// Validate checks the settings a dispatch run depends on.
func (c *Config) Validate() error {
	var missing []string
	if c.PostgresURI == "" {
		missing = append(missing, "POSTGRES_URI")
	}
	if len(c.SecretKey) != 32 {
		missing = append(missing, "SECRET_KEY (32 bytes)")
	}
	if c.Dispatch.Workers <= 0 {
		missing = append(missing, "DISPATCH_WORKERS (> 0)")
	}
	if c.Dispatch.RetryAttempts <= 0 {
		missing = append(missing, "DISPATCH_RETRY_ATTEMPTS (> 0)")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

func (c *Config) AlertsEnabled() bool {
	return c.Alerts.Region != "" && c.Alerts.From != "" && len(c.Alerts.Recipients) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
