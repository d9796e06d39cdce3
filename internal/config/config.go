package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. RISKDASH_SERVER_PORT
const EnvPrefix = "RISKDASH"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Analytics AnalyticsConfig `yaml:"analytics" envconfig:"ANALYTICS"`
	Jobs      JobsConfig      `yaml:"jobs" envconfig:"JOBS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
}

// SecurityConfig contains CORS and rate limiting configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FileName    string `yaml:"file_name" envconfig:"FILE_NAME"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system locations. Relative directories are
// resolved against BaseDir, which defaults to the working directory.
type PathsConfig struct {
	BaseDir      string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ProcessedDir string `yaml:"processed_dir" envconfig:"PROCESSED_DIR"`
	ExportsDir   string `yaml:"exports_dir" envconfig:"EXPORTS_DIR"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
	InboxDir     string `yaml:"inbox_dir" envconfig:"INBOX_DIR"`
}

// StorageConfig locates the dataset registry and the ad-hoc SQL warehouse
type StorageConfig struct {
	DatabaseFile  string        `yaml:"database_file" envconfig:"DATABASE_FILE"`
	WarehouseFile string        `yaml:"warehouse_file" envconfig:"WAREHOUSE_FILE"`
	BusyTimeout   time.Duration `yaml:"busy_timeout" envconfig:"BUSY_TIMEOUT"`
}

// AnalyticsConfig holds the windows and sizes of the analytic views
type AnalyticsConfig struct {
	LeadMonths            int    `yaml:"lead_months" envconfig:"LEAD_MONTHS"`
	AnchorToleranceMonths int    `yaml:"anchor_tolerance_months" envconfig:"ANCHOR_TOLERANCE_MONTHS"`
	ControlsPerEvent      int    `yaml:"controls_per_event" envconfig:"CONTROLS_PER_EVENT"`
	TopMovers             int    `yaml:"top_movers" envconfig:"TOP_MOVERS"`
	MacroMaxLag           int    `yaml:"macro_max_lag" envconfig:"MACRO_MAX_LAG"`
	MacroStart            string `yaml:"macro_start" envconfig:"MACRO_START"`
	MacroEnd              string `yaml:"macro_end" envconfig:"MACRO_END"`
	BacktestStart         string `yaml:"backtest_start" envconfig:"BACKTEST_START"`
	BacktestWindowEnd     string `yaml:"backtest_window_end" envconfig:"BACKTEST_WINDOW_END"`
	MigrationStartQuarter string `yaml:"migration_start_quarter" envconfig:"MIGRATION_START_QUARTER"`
	MigrationEndQuarter   string `yaml:"migration_end_quarter" envconfig:"MIGRATION_END_QUARTER"`
	CrosswalkFile         string `yaml:"crosswalk_file" envconfig:"CROSSWALK_FILE"`
}

// JobsConfig sizes the background computation queue
type JobsConfig struct {
	Workers   int           `yaml:"workers" envconfig:"WORKERS"`
	QueueSize int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Retention time.Duration `yaml:"retention" envconfig:"RETENTION"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

const dateLayout = "2006-01-02"

var quarterPattern = regexp.MustCompile(`^\d{4}Q[1-4]$`)

// Load loads configuration from defaults, the first config file found and
// environment variables, in increasing precedence
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit YAML file. An empty path skips the file.
func LoadFile(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Variables that are not set leave the file and default values alone
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ResolvePaths resolves and creates every application directory
func (c *Config) ResolvePaths() (*Paths, error) {
	paths, err := NewPaths(c.Paths, c.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()
	return paths, nil
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		c.Logging.Format = "json"
	}
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "both"
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize <= 0 {
		return fmt.Errorf("jobs.queue_size must be positive, got %d", c.Jobs.QueueSize)
	}

	a := c.Analytics
	if a.LeadMonths <= 0 {
		return fmt.Errorf("analytics.lead_months must be positive, got %d", a.LeadMonths)
	}
	if a.AnchorToleranceMonths < 0 {
		return fmt.Errorf("analytics.anchor_tolerance_months must not be negative")
	}
	if a.ControlsPerEvent < 0 {
		return fmt.Errorf("analytics.controls_per_event must not be negative")
	}
	if a.TopMovers <= 0 {
		return fmt.Errorf("analytics.top_movers must be positive, got %d", a.TopMovers)
	}
	if a.MacroMaxLag < 0 || a.MacroMaxLag > 12 {
		return fmt.Errorf("analytics.macro_max_lag must be between 0 and 12, got %d", a.MacroMaxLag)
	}
	for name, value := range map[string]string{
		"macro_start":         a.MacroStart,
		"macro_end":           a.MacroEnd,
		"backtest_start":      a.BacktestStart,
		"backtest_window_end": a.BacktestWindowEnd,
	} {
		if _, err := time.Parse(dateLayout, value); err != nil {
			return fmt.Errorf("analytics.%s must be a YYYY-MM-DD date: %w", name, err)
		}
	}
	if !quarterPattern.MatchString(a.MigrationStartQuarter) || !quarterPattern.MatchString(a.MigrationEndQuarter) {
		return fmt.Errorf("analytics migration quarters must look like 2023Q2")
	}
	if a.MigrationStartQuarter >= a.MigrationEndQuarter {
		return fmt.Errorf("analytics.migration_start_quarter must precede migration_end_quarter")
	}
	return nil
}

func mustDate(value string) time.Time {
	t, _ := time.Parse(dateLayout, value)
	return t
}

// MacroStartDate is the date the macro series must reach back to
func (a AnalyticsConfig) MacroStartDate() time.Time { return mustDate(a.MacroStart) }

// MacroEndDate is the date the macro series must extend to
func (a AnalyticsConfig) MacroEndDate() time.Time { return mustDate(a.MacroEnd) }

// BacktestStartDate is the expected loss snapshot date
func (a AnalyticsConfig) BacktestStartDate() time.Time { return mustDate(a.BacktestStart) }

// BacktestWindowEndDate is the last day of the realization window
func (a AnalyticsConfig) BacktestWindowEndDate() time.Time { return mustDate(a.BacktestWindowEnd) }

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
			MaxUploadBytes:  512 << 20,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FileName:    "riskdash.log",
			Development: false,
		},
		Paths: PathsConfig{
			DataDir:      "data",
			ProcessedDir: "processed",
			ExportsDir:   "exports",
			LogsDir:      "logs",
			InboxDir:     "inbox",
		},
		Storage: StorageConfig{
			DatabaseFile: "riskdash.db",
			BusyTimeout:  5 * time.Second,
		},
		Analytics: AnalyticsConfig{
			LeadMonths:            36,
			AnchorToleranceMonths: 3,
			ControlsPerEvent:      3,
			TopMovers:             10,
			MacroMaxLag:           4,
			MacroStart:            "2023-01-01",
			MacroEnd:              "2025-06-30",
			BacktestStart:         "2023-12-31",
			BacktestWindowEnd:     "2024-12-31",
			MigrationStartQuarter: "2023Q2",
			MigrationEndQuarter:   "2025Q2",
		},
		Jobs: JobsConfig{
			Workers:   2,
			QueueSize: 100,
			Timeout:   10 * time.Minute,
			Retention: time.Hour,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
