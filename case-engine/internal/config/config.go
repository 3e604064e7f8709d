package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config captures runtime settings for the case engine.
type Config struct {
	Addr            string
	Store           string
	DatabaseURL     string
	DataDir         string
	JobTimeout      time.Duration
	MaxPayloadBytes int

	SanctionsURL    string
	CorruptionURL   string
	IndustryRiskURL string
	ProviderSecret  string
	ProviderTimeout time.Duration

	SignerKeyB64 string
	SignerID     string
	KafkaBrokers []string
	KafkaTopic   string
	S3Bucket     string
	S3Prefix     string

	LogJSON  bool
	LogLevel string
}

const (
	defaultAddr            = ":8072"
	defaultDataDir         = "data/cases"
	defaultSignerID        = "case-engine-dev"
	defaultKafkaTopic      = "case-engine.audit"
	defaultPayloadLimit    = 256 * 1024
	defaultProviderTimeout = 5 * time.Second
)

func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("CASE_ENGINE_ADDR", defaultAddr),
		Store:           strings.ToLower(getEnv("CASE_ENGINE_STORE", "")),
		DatabaseURL:     firstNonEmpty(os.Getenv("CASE_ENGINE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		DataDir:         getEnv("CASE_ENGINE_DATA_DIR", defaultDataDir),
		JobTimeout:      getDuration("CASE_ENGINE_JOB_TIMEOUT", 0),
		MaxPayloadBytes: getInt("CASE_ENGINE_MAX_PAYLOAD_BYTES", defaultPayloadLimit),
		SanctionsURL:    os.Getenv("SANCTIONS_URL"),
		CorruptionURL:   os.Getenv("CORRUPTION_URL"),
		IndustryRiskURL: os.Getenv("INDUSTRY_RISK_URL"),
		ProviderSecret:  os.Getenv("PROVIDER_JWT_SECRET"),
		ProviderTimeout: getDuration("CASE_ENGINE_PROVIDER_TIMEOUT", defaultProviderTimeout),
		SignerKeyB64:    os.Getenv("CASE_ENGINE_SIGNER_KEY_B64"),
		SignerID:        getEnv("CASE_ENGINE_SIGNER_ID", defaultSignerID),
		KafkaBrokers:    parseCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        os.Getenv("S3_PREFIX"),
		LogJSON:         getBool("CASE_ENGINE_LOG_JSON", false),
		LogLevel:        strings.ToLower(getEnv("CASE_ENGINE_LOG_LEVEL", "info")),
	}

	// postgres when a DSN is present, otherwise the in-memory store
	if cfg.Store == "" {
		cfg.Store = StoreMemory
		if cfg.DatabaseURL != "" {
			cfg.Store = StorePostgres
		}
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreFile:
		if cfg.DataDir == "" {
			return Config{}, fmt.Errorf("CASE_ENGINE_DATA_DIR required for file store")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL or CASE_ENGINE_DATABASE_URL required for postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown CASE_ENGINE_STORE %q (want memory, file or postgres)", cfg.Store)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func parseCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
