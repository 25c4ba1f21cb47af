// Package config loads every tunable from the environment. A local .env file
// is honored for development; production deployments set real environment
// variables. Only the database credentials are required; everything else
// has a safe default.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DBConfig struct {
	User     string
	Password string
	Database string
	Host     string
	Port     int
	PoolMin  int
	PoolMax  int
}

// DSN renders the pgx connection string including pool bounds.
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?pool_min_conns=%d&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Database, d.PoolMin, d.PoolMax,
	)
}

type TorConfig struct {
	SocksHost       string
	SocksPort       int
	ControlPort     int
	ControlPassword string
}

func (t TorConfig) SocksAddr() string {
	return fmt.Sprintf("%s:%d", t.SocksHost, t.SocksPort)
}

func (t TorConfig) ControlAddr() string {
	return fmt.Sprintf("%s:%d", t.SocksHost, t.ControlPort)
}

type CrawlerConfig struct {
	MaxDepth        int
	PoliteDelay     time.Duration
	MaxInnerPerSite int
}

type SeedConfig struct {
	MaxPages       int // Ahmia result pages per keyword
	MaxConcurrency int
	Retries        int
	RetryBackoff   time.Duration
	SearchEndpoint string
}

type AnalyzerConfig struct {
	BatchSize     int
	SleepInterval time.Duration
}

type TxWorkerConfig struct {
	BatchSize     int
	SleepInterval time.Duration
	ExplorerURL   string
	RatePerSecond float64
}

type LivenessConfig struct {
	MaxConcurrency int
	BatchSize      int
	JitterMin      time.Duration
	JitterMax      time.Duration
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

type ClassifierConfig struct {
	// Labels maps a category to its keyword dictionary.
	Labels          map[string][]string
	AcceptThreshold float64
	ModelName       string
	ModelVersion    string
}

type Config struct {
	DB         DBConfig
	Tor        TorConfig
	Crawler    CrawlerConfig
	Seed       SeedConfig
	Analyzer   AnalyzerConfig
	TxWorker   TxWorkerConfig
	Liveness   LivenessConfig
	Classifier ClassifierConfig
	APIPort    string
}

// Load reads .env (if present) and assembles the full configuration.
// Missing required values are fatal: a crawler with no database is useless.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] .env not loaded: %v", err)
	}

	db := DBConfig{
		User:     requireEnv("DB_USER"),
		Password: requireEnv("DB_PASSWORD"),
		Database: requireEnv("DB_NAME"),
		Host:     getEnvOrDefault("DB_HOST", "127.0.0.1"),
		Port:     getEnvInt("DB_PORT", 5432),
		PoolMin:  getEnvInt("DB_POOL_MIN", 1),
		PoolMax:  getEnvInt("DB_POOL_MAX", 10),
	}

	cfg := &Config{
		DB: db,
		Tor: TorConfig{
			SocksHost:       getEnvOrDefault("TOR_SOCKS_HOST", "127.0.0.1"),
			SocksPort:       getEnvInt("TOR_SOCKS_PORT", 9050),
			ControlPort:     getEnvInt("TOR_CONTROL_PORT", 9051),
			ControlPassword: os.Getenv("TOR_CONTROL_PASSWORD"),
		},
		Crawler: CrawlerConfig{
			MaxDepth:        getEnvInt("CRAWLER_MAX_DEPTH", 2),
			PoliteDelay:     getEnvDuration("CRAWLER_POLITE_DELAY", 2*time.Second),
			MaxInnerPerSite: getEnvInt("CRAWLER_MAX_INNER_PER_SITE", 50),
		},
		Seed: SeedConfig{
			MaxPages:       getEnvInt("SEED_MAX_PAGES", 8),
			MaxConcurrency: getEnvInt("SEED_MAX_CONCURRENCY", 5),
			Retries:        getEnvInt("SEED_RETRIES", 3),
			RetryBackoff:   getEnvDuration("SEED_RETRY_BACKOFF", 2*time.Second),
			SearchEndpoint: getEnvOrDefault("SEED_SEARCH_ENDPOINT", "https://ahmia.fi/search/"),
		},
		Analyzer: AnalyzerConfig{
			BatchSize:     getEnvInt("ANALYZER_BATCH_SIZE", 50),
			SleepInterval: getEnvDuration("ANALYZER_SLEEP_INTERVAL", 10*time.Second),
		},
		TxWorker: TxWorkerConfig{
			BatchSize:     getEnvInt("TXWORKER_BATCH_SIZE", 10),
			SleepInterval: getEnvDuration("TXWORKER_SLEEP_INTERVAL", 30*time.Second),
			ExplorerURL:   getEnvOrDefault("EXPLORER_URL", "https://blockstream.info/api"),
			RatePerSecond: getEnvFloat("EXPLORER_RATE_PER_SECOND", 1.0),
		},
		Liveness: LivenessConfig{
			MaxConcurrency: getEnvInt("LIVENESS_MAX_CONCURRENCY", 10),
			BatchSize:      getEnvInt("LIVENESS_BATCH_SIZE", 50),
			JitterMin:      getEnvDuration("LIVENESS_JITTER_MIN", 300*time.Millisecond),
			JitterMax:      getEnvDuration("LIVENESS_JITTER_MAX", 1200*time.Millisecond),
			RequestTimeout: getEnvDuration("LIVENESS_REQUEST_TIMEOUT", 45*time.Second),
			ConnectTimeout: getEnvDuration("LIVENESS_CONNECT_TIMEOUT", 25*time.Second),
		},
		Classifier: ClassifierConfig{
			Labels:          parseLabels(getEnvOrDefault("CLASSIFIER_LABELS", defaultLabels)),
			AcceptThreshold: getEnvFloat("CLASSIFIER_ACCEPT_THRESHOLD", 0.4),
			ModelName:       getEnvOrDefault("CLASSIFIER_MODEL_NAME", "keyword-dict"),
			ModelVersion:    getEnvOrDefault("CLASSIFIER_MODEL_VERSION", "v1"),
		},
		APIPort: getEnvOrDefault("PORT", "5440"),
	}

	return cfg, nil
}

// defaultLabels is the fallback category dictionary; operators override it
// with CLASSIFIER_LABELS using the label:kw1|kw2;label2:kw3 form.
const defaultLabels = "drugs:cannabis|mdma|pills|gram|stealth;" +
	"fraud:cvv|fullz|dumps|paypal|carding;" +
	"weapons:pistol|ammo|rifle|glock;" +
	"marketplace:escrow|vendor|listing|ship|order"

func parseLabels(raw string) map[string][]string {
	labels := make(map[string][]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		var kws []string
		for _, kw := range strings.Split(parts[1], "|") {
			if kw = strings.TrimSpace(kw); kw != "" {
				kws = append(kws, strings.ToLower(kw))
			}
		}
		if len(kws) > 0 {
			labels[strings.TrimSpace(parts[0])] = kws
		}
	}
	return labels
}

// requireEnv reads a required environment variable and exits if it is not
// set. This prevents the binary from starting with missing critical
// configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		log.Printf("[Config] Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		log.Printf("[Config] Invalid float for %s, using default %g", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Printf("[Config] Invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}
