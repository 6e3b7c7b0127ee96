package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
	"github.com/stylesync/stylesync-backend/internal/color_advice/fingerprint"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Phases   PhasesConfig
	Pipeline PipelineConfig
	Security SecurityConfig
	App      AppConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig is optional; without a DSN asset references are disabled.
type DatabaseConfig struct {
	DSN string
}

// RedisConfig is optional; without a URL only the in-process LRU is used.
type RedisConfig struct {
	URL       string
	OpTimeout time.Duration
}

type CacheConfig struct {
	L1TTL           time.Duration
	SegmentationTTL time.Duration
	ExtractionTTL   time.Duration
	HarmonyTTL      time.Duration
	IdempotencyTTL  time.Duration
	LRUSize         int
	SweepSchedule   string // cron spec with seconds
}

// PhaseConfig configures one pipeline phase. An empty URL disables the remote
// adapter (harmony then runs in-process).
type PhaseConfig struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold int
	FailureWindow    time.Duration
	RecoveryTimeout  time.Duration
	PolicyVersion    string
	CacheParams      []string // nil keeps the built-in allow-list
	NearDuplicate    bool
}

type PhasesConfig struct {
	Segmentation PhaseConfig
	Extraction   PhaseConfig
	Harmony      PhaseConfig
}

// All returns the phase configs keyed by phase name.
func (p PhasesConfig) All() map[domain.PhaseName]PhaseConfig {
	return map[domain.PhaseName]PhaseConfig{
		domain.PhaseSegmentation: p.Segmentation,
		domain.PhaseExtraction:   p.Extraction,
		domain.PhaseHarmony:      p.Harmony,
	}
}

func (p *PhasesConfig) get(name string) (*PhaseConfig, bool) {
	switch domain.PhaseName(name) {
	case domain.PhaseSegmentation:
		return &p.Segmentation, true
	case domain.PhaseExtraction:
		return &p.Extraction, true
	case domain.PhaseHarmony:
		return &p.Harmony, true
	}
	return nil, false
}

type PipelineConfig struct {
	RequestSlack   time.Duration
	MaxUploadBytes int64
}

type SecurityConfig struct {
	APIKeys        []string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
	PolicyFile  string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: getEnvAsMillis("SHUTDOWN_TIMEOUT_MS", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DB_DSN", ""),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			OpTimeout: getEnvAsMillis("REDIS_OP_TIMEOUT_MS", 50*time.Millisecond),
		},
		Cache: CacheConfig{
			L1TTL:           getEnvAsDuration("CACHE_L1_TTL", 7*24*time.Hour),
			SegmentationTTL: getEnvAsDuration("CACHE_SEGMENTATION_TTL", 24*time.Hour),
			ExtractionTTL:   getEnvAsDuration("CACHE_EXTRACTION_TTL", 24*time.Hour),
			HarmonyTTL:      getEnvAsDuration("CACHE_HARMONY_TTL", 12*time.Hour),
			IdempotencyTTL:  getEnvAsDuration("CACHE_IDEMPOTENCY_TTL", 5*time.Minute),
			LRUSize:         getEnvAsInt("CACHE_LRU_SIZE", 1024),
			SweepSchedule:   getEnv("CACHE_SWEEP_SCHEDULE", "0 */5 * * * *"),
		},
		Phases: PhasesConfig{
			Segmentation: phaseFromEnv("SEGMENTATION", 1200*time.Millisecond, 3, 30*time.Second),
			Extraction:   phaseFromEnv("EXTRACTION", 300*time.Millisecond, 5, 60*time.Second),
			Harmony:      phaseFromEnv("HARMONY", 100*time.Millisecond, 10, 120*time.Second),
		},
		Pipeline: PipelineConfig{
			RequestSlack:   getEnvAsMillis("REQUEST_SLACK_MS", 900*time.Millisecond),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Security: SecurityConfig{
			APIKeys:        getEnvAsList("API_KEYS", nil),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			PolicyFile:  getEnv("POLICY_FILE", ""),
		},
	}

	if cfg.App.PolicyFile != "" {
		if err := cfg.ApplyPolicyFile(cfg.App.PolicyFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func phaseFromEnv(prefix string, timeout time.Duration, threshold int, window time.Duration) PhaseConfig {
	return PhaseConfig{
		URL:              getEnv(prefix+"_URL", ""),
		Timeout:          getEnvAsMillis(prefix+"_TIMEOUT_MS", timeout),
		FailureThreshold: getEnvAsInt(prefix+"_FAILURE_THRESHOLD", threshold),
		FailureWindow:    getEnvAsMillis(prefix+"_FAILURE_WINDOW_MS", window),
		RecoveryTimeout:  getEnvAsMillis(prefix+"_RECOVERY_TIMEOUT_MS", window),
		PolicyVersion:    getEnv(prefix+"_POLICY_VERSION", "v1"),
		CacheParams:      getEnvAsList(prefix+"_CACHE_PARAMS", nil),
		NearDuplicate:    getEnvAsBool(prefix+"_NEAR_DUPLICATE", false),
	}
}

// policyFile is the YAML layout of POLICY_FILE:
//
//	phases:
//	  extraction:
//	    policy_version: v2
//	    cache_params: [k, max_samples]
//	    near_duplicate: true
type policyFile struct {
	Phases map[string]policyOverride `yaml:"phases"`
}

type policyOverride struct {
	PolicyVersion string   `yaml:"policy_version"`
	CacheParams   []string `yaml:"cache_params"`
	NearDuplicate *bool    `yaml:"near_duplicate"`
}

// ApplyPolicyFile overrides phase cache policies from a YAML file.
func (c *Config) ApplyPolicyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	return c.applyPolicy(raw)
}

func (c *Config) applyPolicy(raw []byte) error {
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	for name, o := range pf.Phases {
		pc, ok := c.Phases.get(name)
		if !ok {
			return fmt.Errorf("policy file: unknown phase %q", name)
		}
		if o.PolicyVersion != "" {
			pc.PolicyVersion = o.PolicyVersion
		}
		if o.CacheParams != nil {
			pc.CacheParams = o.CacheParams
		}
		if o.NearDuplicate != nil {
			pc.NearDuplicate = *o.NearDuplicate
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Redis.OpTimeout <= 0 {
		return fmt.Errorf("REDIS_OP_TIMEOUT_MS must be positive")
	}
	if c.Pipeline.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Pipeline.RequestSlack < 0 {
		return fmt.Errorf("REQUEST_SLACK_MS must not be negative")
	}

	for name, pc := range c.Phases.All() {
		prefix := strings.ToUpper(string(name))
		if pc.Timeout <= 0 {
			return fmt.Errorf("%s_TIMEOUT_MS must be positive", prefix)
		}
		if pc.FailureThreshold < 1 {
			return fmt.Errorf("%s_FAILURE_THRESHOLD must be at least 1", prefix)
		}
		if pc.FailureWindow <= 0 || pc.RecoveryTimeout <= 0 {
			return fmt.Errorf("%s breaker window and recovery timeout must be positive", prefix)
		}
		if err := fingerprint.ValidateVersion(pc.PolicyVersion); err != nil {
			return fmt.Errorf("%s_POLICY_VERSION: %w", prefix, err)
		}
		for _, p := range pc.CacheParams {
			if !domain.KnownParam(p) {
				return fmt.Errorf("%s_CACHE_PARAMS: unknown parameter %q", prefix, p)
			}
		}
	}

	for _, ttl := range []time.Duration{c.Cache.L1TTL, c.Cache.SegmentationTTL, c.Cache.ExtractionTTL, c.Cache.HarmonyTTL, c.Cache.IdempotencyTTL} {
		if ttl <= 0 {
			return fmt.Errorf("cache TTLs must be positive")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsMillis reads an integer number of milliseconds.
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	ms, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid milliseconds for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return time.Duration(ms) * time.Millisecond
}

// getEnvAsDuration reads a Go duration string such as "12h".
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

// getEnvAsList reads a comma separated list, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
