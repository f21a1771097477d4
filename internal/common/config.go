package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Badger      BadgerConfig      `toml:"badger"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Vault       VaultConfig       `toml:"vault"`
	Logging     LoggingConfig     `toml:"logging"`
	Queue       QueueConfig       `toml:"queue"`
	Worker      WorkerConfig      `toml:"worker"`
	Browser     BrowserConfig     `toml:"browser"`
	Scraper     ScraperConfig     `toml:"scraper"`
	Compliance  ComplianceConfig  `toml:"compliance"`
	LLM         LLMConfig         `toml:"llm"`
	Claude      ClaudeConfig      `toml:"claude"`
	Gemini      GeminiConfig      `toml:"gemini"`
	Sites       SitesDirConfig    `toml:"sites"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path          string `toml:"path"`            // Database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`   // SQLite page cache size
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // SQLITE_BUSY wait before erroring
	WALMode       bool   `toml:"wal_mode"`        // Enable write-ahead logging
}

// RedisConfig configures the session store backend
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// BadgerConfig configures the compliance verdict cache
type BadgerConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"` // For tests and ephemeral deployments
}

// ObjectStoreConfig configures the S3-compatible document store
type ObjectStoreConfig struct {
	Endpoint  string `toml:"endpoint"` // Custom endpoint for MinIO-compatible stores
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PathStyle bool   `toml:"path_style"` // Required for MinIO
}

// VaultConfig configures credential encryption
type VaultConfig struct {
	Key string `toml:"key"` // Base64-encoded 32-byte AES-256 key
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// QueueConfig controls job queue behavior
type QueueConfig struct {
	PollInterval       string `toml:"poll_interval"`        // How often workers poll for claimable jobs
	MaxRetries         int    `toml:"max_retries"`          // Default max_retries for new jobs
	HeartbeatInterval  string `toml:"heartbeat_interval"`   // Worker heartbeat period
	StaleAfter         string `toml:"stale_after"`          // Heartbeat age before a running job is reaped
	BackoffBaseSeconds int    `toml:"backoff_base_seconds"` // Retry backoff base (doubles per attempt)
	BackoffCapSeconds  int    `toml:"backoff_cap_seconds"`  // Retry backoff ceiling
}

// WorkerConfig controls the in-process worker pool
type WorkerConfig struct {
	Concurrency int      `toml:"concurrency"` // Concurrent scrape runs per worker process
	Queues      []string `toml:"queues"`      // Job kinds this worker claims (empty = all)
}

// BrowserConfig controls chromedp contexts and anti-detection
type BrowserConfig struct {
	Headless          bool          `toml:"headless"`
	DisableGPU        bool          `toml:"disable_gpu"`
	NoSandbox         bool          `toml:"no_sandbox"`
	PageLoadTimeout   time.Duration `toml:"page_load_timeout"`
	UserAgentRotation bool          `toml:"user_agent_rotation"`
	Proxies           []string      `toml:"proxies"`     // Rotating proxy pool ("http://host:port")
	SolverURL         string        `toml:"solver_url"`  // External Cloudflare challenge solver
	CaptchaKey        string        `toml:"captcha_key"` // CAPTCHA service API key
}

// ScraperConfig controls scrape run behavior
type ScraperConfig struct {
	DefaultMaxPages  int           `toml:"default_max_pages"`
	AuthTimeout      time.Duration `toml:"auth_timeout"`
	AdvanceTimeout   time.Duration `toml:"advance_timeout"`
	JobSoftTimeout   time.Duration `toml:"job_soft_timeout"`
	JobHardTimeout   time.Duration `toml:"job_hard_timeout"`
	GovDelayMS       int           `toml:"gov_delay_ms"`     // Minimum inter-request delay for government domains
	DefaultDelayMS   int           `toml:"default_delay_ms"` // Minimum inter-request delay for everything else
	SessionTTL       time.Duration `toml:"session_ttl"`
	MaxDocumentBytes int64         `toml:"max_document_bytes"`
	DocumentWorkers  int           `toml:"document_workers"`
	PerHostDownloads float64       `toml:"per_host_downloads"` // Per-host download rate, requests per second
}

// ComplianceConfig controls the compliance gate
type ComplianceConfig struct {
	UserAgent    string        `toml:"user_agent"`    // Crawler identity for robots.txt matching
	CacheTTL     time.Duration `toml:"cache_ttl"`     // Verdict cache lifetime
	FetchTimeout time.Duration `toml:"fetch_timeout"` // robots.txt / terms page fetch timeout
}

// LLMProvider identifies an extraction backend
type LLMProvider string

const (
	LLMProviderClaude  LLMProvider = "claude"
	LLMProviderGemini  LLMProvider = "gemini"
	LLMProviderOffline LLMProvider = "offline"
)

// LLMConfig selects the extraction provider
type LLMConfig struct {
	Provider LLMProvider `toml:"provider" validate:"omitempty,oneof=claude gemini offline"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// SitesDirConfig points at the site definition directory (TOML/YAML files)
type SitesDirConfig struct {
	Dir string `toml:"dir"`
}

// SchedulerConfig controls cron-driven maintenance
type SchedulerConfig struct {
	Enabled        bool   `toml:"enabled"`
	ReapSchedule   string `toml:"reap_schedule"`   // Cron spec for the stale-job reaper
	ScrapeSchedule string `toml:"scrape_schedule"` // Cron spec for recurring site scrapes; empty disables
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings belong in hoistscout.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Path:          "./data/hoistscout.db",
			CacheSizeMB:   64,
			BusyTimeoutMS: 5000,
			WALMode:       true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Badger: BadgerConfig{
			Path: "./data/compliance",
		},
		ObjectStore: ObjectStoreConfig{
			Region:    "us-east-1",
			Bucket:    "hoistscout-documents",
			PathStyle: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Queue: QueueConfig{
			PollInterval:       "1s",
			MaxRetries:         3,
			HeartbeatInterval:  "30s",
			StaleAfter:         "2m",
			BackoffBaseSeconds: 60,
			BackoffCapSeconds:  600,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
		},
		Browser: BrowserConfig{
			Headless:          true,
			DisableGPU:        true,
			NoSandbox:         true,
			PageLoadTimeout:   30 * time.Second,
			UserAgentRotation: true,
		},
		Scraper: ScraperConfig{
			DefaultMaxPages:  50,
			AuthTimeout:      15 * time.Second,
			AdvanceTimeout:   10 * time.Second,
			JobSoftTimeout:   25 * time.Minute,
			JobHardTimeout:   30 * time.Minute,
			GovDelayMS:       3000,
			DefaultDelayMS:   2000,
			SessionTTL:       23 * time.Hour,
			MaxDocumentBytes: 50 * 1024 * 1024,
			DocumentWorkers:  4,
			PerHostDownloads: 0.5,
		},
		Compliance: ComplianceConfig{
			UserAgent:    "HoistScoutBot/1.0 (+https://hoistscout.io/bot)",
			CacheTTL:     24 * time.Hour,
			FetchTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: LLMProviderClaude,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "2m",
			Temperature: 0.1,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			Timeout:     "2m",
			Temperature: 0.1,
		},
		Sites: SitesDirConfig{
			Dir: "./sites",
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			ReapSchedule: "0 * * * * *", // Every minute
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order,
// then environment overrides. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints on the loaded configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max_retries cannot be negative, got %d", c.Queue.MaxRetries)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Env vars win over every config file.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("HOIST_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("HOIST_DB_PATH"); path != "" {
		config.Database.Path = path
	}
	if addr := os.Getenv("HOIST_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("HOIST_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if path := os.Getenv("HOIST_BADGER_PATH"); path != "" {
		config.Badger.Path = path
	}

	if endpoint := os.Getenv("HOIST_S3_ENDPOINT"); endpoint != "" {
		config.ObjectStore.Endpoint = endpoint
	}
	if bucket := os.Getenv("HOIST_S3_BUCKET"); bucket != "" {
		config.ObjectStore.Bucket = bucket
	}
	if key := os.Getenv("HOIST_S3_ACCESS_KEY"); key != "" {
		config.ObjectStore.AccessKey = key
	}
	if key := os.Getenv("HOIST_S3_SECRET_KEY"); key != "" {
		config.ObjectStore.SecretKey = key
	}

	if key := os.Getenv("HOIST_VAULT_KEY"); key != "" {
		config.Vault.Key = key
	}

	if level := os.Getenv("HOIST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("HOIST_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("HOIST_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if pollInterval := os.Getenv("HOIST_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if maxRetries := os.Getenv("HOIST_QUEUE_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Queue.MaxRetries = mr
		}
	}
	if concurrency := os.Getenv("HOIST_WORKER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Worker.Concurrency = c
		}
	}

	if headless := os.Getenv("HOIST_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if proxies := os.Getenv("HOIST_PROXIES"); proxies != "" {
		list := []string{}
		for _, p := range strings.Split(proxies, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		config.Browser.Proxies = list
	}
	if solver := os.Getenv("HOIST_SOLVER_URL"); solver != "" {
		config.Browser.SolverURL = solver
	}
	if captchaKey := os.Getenv("HOIST_CAPTCHA_KEY"); captchaKey != "" {
		config.Browser.CaptchaKey = captchaKey
	}

	if provider := os.Getenv("HOIST_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(provider)
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}

	if dir := os.Getenv("HOIST_SITES_DIR"); dir != "" {
		config.Sites.Dir = dir
	}
}

// QueuePollInterval parses the configured poll interval with a safe fallback
func (c *Config) QueuePollInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// WorkerHeartbeatInterval parses the configured heartbeat period with a safe fallback
func (c *Config) WorkerHeartbeatInterval() time.Duration {
	d, err := time.ParseDuration(c.Queue.HeartbeatInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// StaleJobThreshold parses the reaper threshold with a safe fallback
func (c *Config) StaleJobThreshold() time.Duration {
	d, err := time.ParseDuration(c.Queue.StaleAfter)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}
