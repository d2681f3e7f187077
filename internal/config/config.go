package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageConfig holds the artifact directory and lifetime settings.
type StorageConfig struct {
	Dir              string
	MaxFileAge       time.Duration
	CleanupInterval  time.Duration
	MaxContentLength int64
	MaxPDFSize       int64
}

// PDFConfig holds the external renderer settings.
type PDFConfig struct {
	Enabled      bool
	GotenbergURL string
	Timeout      time.Duration
}

// SecurityConfig holds upload protection and served-content headers.
type SecurityConfig struct {
	APIKey    string
	CSPPolicy string
}

// Rate is a single request budget: Limit requests per Window.
type Rate struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the per-route and global per-client budgets.
// An empty slice means the route class is unbounded.
type RateLimitConfig struct {
	Upload []Rate
	Files  []Rate
	Stats  []Rate
	Global []Rate
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Port        string
	BaseURL     string
	Location    *time.Location
	LogLevel    string
	ProxyHeader string
	Storage     StorageConfig
	PDF         PDFConfig
	Security    SecurityConfig
	RateLimit   RateLimitConfig
}

const defaultCSP = "default-src 'self' 'unsafe-inline' 'unsafe-eval' data: blob: https:;"

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		Port:        getEnv("PORT", "8080"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		Location:    getEnvLocation("APP_TZ", time.UTC),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ProxyHeader: getEnv("PROXY_HEADER", ""),
		Storage: StorageConfig{
			Dir:              getEnv("STORAGE_DIR", "html_files"),
			MaxFileAge:       getEnvSeconds("MAX_FILE_AGE", 24*time.Hour),
			CleanupInterval:  getEnvSeconds("CLEANUP_INTERVAL", 10*time.Minute),
			MaxContentLength: getEnvInt64("MAX_CONTENT_LENGTH", 1<<20),
			MaxPDFSize:       getEnvInt64("MAX_PDF_SIZE", 20<<20),
		},
		PDF: PDFConfig{
			Enabled:      getEnvBool("PDF_ENABLED", true),
			GotenbergURL: strings.TrimRight(getEnv("GOTENBERG_URL", "http://gotenberg:3000"), "/"),
			Timeout:      getEnvSeconds("GOTENBERG_TIMEOUT", 30*time.Second),
		},
		Security: SecurityConfig{
			APIKey:    getEnv("API_KEY", ""),
			CSPPolicy: getEnv("CSP_POLICY", defaultCSP),
		},
		RateLimit: RateLimitConfig{
			Upload: getEnvRates("RATE_LIMIT_UPLOAD", "30/hour"),
			Files:  getEnvRates("RATE_LIMIT_FILES", "100/minute"),
			Stats:  getEnvRates("RATE_LIMIT_STATS", "10/minute"),
			Global: getEnvRates("RATE_LIMIT_GLOBAL", "200/day,50/hour"),
		},
	}
}

// APIKeyRequired reports whether uploads must carry an API key.
func (c *AppConfig) APIKeyRequired() bool {
	return c.Security.APIKey != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil && i > 0 {
			return i
		}
	}
	return def
}

// getEnvSeconds reads a positive number of seconds.
func getEnvSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return def
}

func getEnvLocation(key string, def *time.Location) *time.Location {
	if v := os.Getenv(key); v != "" {
		loc, err := time.LoadLocation(v)
		if err == nil {
			return loc
		}
	}
	return def
}

// getEnvRates reads a budget list. The default is used when the variable is unset
// or malformed; an explicit "0" disables the budget.
func getEnvRates(key, def string) []Rate {
	if v, ok := os.LookupEnv(key); ok {
		if rates, err := ParseRates(v); err == nil {
			return rates
		}
	}
	rates, _ := ParseRates(def)
	return rates
}
