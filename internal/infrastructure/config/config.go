package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Event     EventConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
	Storage   StorageConfig
	Cursor    CursorConfig
	Dropbox   DropboxConfig
	Monday    MondayConfig
	Xero      XeroConfig
	OpenAI    OpenAIConfig
	OCR       OCRConfig
	Accounts  AccountsConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings.
// Driver is one of postgres, mysql or sqlite; Path is the sqlite file.
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// EventConfig holds outbox processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	HandlerTTL       time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustedProxies    []string
	// AdminToken guards /api/v1. The admin API is not mounted when empty.
	AdminToken        string
}

// SchedulerConfig holds poller and worker pool configuration
type SchedulerConfig struct {
	Enabled           bool
	PollInterval      time.Duration
	PollBatchSize     int
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
	ProfilingEnabled  bool
	PyroscopeAddress  string
}

// StorageConfig holds the S3 document archive settings
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
}

// CursorConfig selects where change-feed cursors are persisted
type CursorConfig struct {
	Backend   string // file or redis
	Directory string
}

// DropboxConfig holds Dropbox API credentials and webhook settings
type DropboxConfig struct {
	AppKey          string
	AppSecret       string
	RefreshToken    string
	MemberEmail     string
	NamespaceName   string
	APIBaseURL      string
	ContentBaseURL  string
	WebhookDedupTTL time.Duration
}

// MondayConfig holds Monday.com API settings and board/column ids
type MondayConfig struct {
	APIToken          string
	SigningSecret     string
	WebhookToken      string
	APIURL            string
	APIVersion        string
	POBoardID         int64
	ContactBoardID    int64
	RequestsPerMinute int
	MaxAttempts       int
}

// XeroConfig holds Xero OAuth2 settings
type XeroConfig struct {
	Enabled       bool
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	TenantID      string
	TokenURL      string
	APIBaseURL    string
	RateLimitWait time.Duration

	// BankAccountCode is the Xero bank account card spend is booked against
	BankAccountCode string
}

// OpenAIConfig holds the LLM extraction settings
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OCRConfig holds the tesseract settings
type OCRConfig struct {
	TesseractPath  string
	RasterizerPath string
	Language       string
	Timeout        time.Duration
}

// AccountsConfig points at the account code map
type AccountsConfig struct {
	CodeMapPath string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with DOCSYNC_ prefix (e.g., DOCSYNC_DROPBOX_APP_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file, or searches the default
// locations when path is empty.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./backend")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DOCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			HandlerTTL:       v.GetDuration("event.handler_ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			AdminToken:        v.GetString("http.admin_token"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			PollInterval:      v.GetDuration("scheduler.poll_interval"),
			PollBatchSize:     v.GetInt("scheduler.poll_batch_size"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
		},
		Cursor: CursorConfig{
			Backend:   v.GetString("cursor.backend"),
			Directory: v.GetString("cursor.directory"),
		},
		Dropbox: DropboxConfig{
			AppKey:          v.GetString("dropbox.app_key"),
			AppSecret:       v.GetString("dropbox.app_secret"),
			RefreshToken:    v.GetString("dropbox.refresh_token"),
			MemberEmail:     v.GetString("dropbox.member_email"),
			NamespaceName:   v.GetString("dropbox.namespace_name"),
			APIBaseURL:      v.GetString("dropbox.api_base_url"),
			ContentBaseURL:  v.GetString("dropbox.content_base_url"),
			WebhookDedupTTL: v.GetDuration("dropbox.webhook_dedup_ttl"),
		},
		Monday: MondayConfig{
			APIToken:          v.GetString("monday.api_token"),
			SigningSecret:     v.GetString("monday.signing_secret"),
			WebhookToken:      v.GetString("monday.webhook_token"),
			APIURL:            v.GetString("monday.api_url"),
			APIVersion:        v.GetString("monday.api_version"),
			POBoardID:         v.GetInt64("monday.po_board_id"),
			ContactBoardID:    v.GetInt64("monday.contact_board_id"),
			RequestsPerMinute: v.GetInt("monday.requests_per_minute"),
			MaxAttempts:       v.GetInt("monday.max_attempts"),
		},
		Xero: XeroConfig{
			Enabled:         v.GetBool("xero.enabled"),
			ClientID:        v.GetString("xero.client_id"),
			ClientSecret:    v.GetString("xero.client_secret"),
			RefreshToken:    v.GetString("xero.refresh_token"),
			TenantID:        v.GetString("xero.tenant_id"),
			TokenURL:        v.GetString("xero.token_url"),
			APIBaseURL:      v.GetString("xero.api_base_url"),
			RateLimitWait:   v.GetDuration("xero.rate_limit_wait"),
			BankAccountCode: v.GetString("xero.bank_account_code"),
		},
		OpenAI: OpenAIConfig{
			APIKey:    v.GetString("openai.api_key"),
			BaseURL:   v.GetString("openai.base_url"),
			Model:     v.GetString("openai.model"),
			MaxTokens: v.GetInt("openai.max_tokens"),
		},
		OCR: OCRConfig{
			TesseractPath:  v.GetString("ocr.tesseract_path"),
			RasterizerPath: v.GetString("ocr.rasterizer_path"),
			Language:       v.GetString("ocr.language"),
			Timeout:        v.GetDuration("ocr.timeout"),
		},
		Accounts: AccountsConfig{
			CodeMapPath: v.GetString("accounts.code_map_path"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "docsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		switch cfg.Database.Driver {
		case "mysql":
			cfg.Database.Port = 3306
		default:
			cfg.Database.Port = 5432
		}
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "docsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "docsync.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.HandlerTTL == 0 {
		cfg.Event.HandlerTTL = 24 * time.Hour
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}

	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = 5 * time.Second
	}
	if cfg.Scheduler.PollBatchSize == 0 {
		cfg.Scheduler.PollBatchSize = 50
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 3
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 10 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 60 * time.Second
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "docsync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "docsync-documents"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 15 * time.Minute
	}

	if cfg.Cursor.Backend == "" {
		cfg.Cursor.Backend = "file"
	}
	if cfg.Cursor.Directory == "" {
		cfg.Cursor.Directory = "cursors"
	}

	if cfg.Dropbox.NamespaceName == "" {
		cfg.Dropbox.NamespaceName = "2024"
	}
	if cfg.Dropbox.APIBaseURL == "" {
		cfg.Dropbox.APIBaseURL = "https://api.dropboxapi.com"
	}
	if cfg.Dropbox.ContentBaseURL == "" {
		cfg.Dropbox.ContentBaseURL = "https://content.dropboxapi.com"
	}
	if cfg.Dropbox.WebhookDedupTTL == 0 {
		cfg.Dropbox.WebhookDedupTTL = 30 * time.Second
	}

	if cfg.Monday.APIURL == "" {
		cfg.Monday.APIURL = "https://api.monday.com/v2"
	}
	if cfg.Monday.APIVersion == "" {
		cfg.Monday.APIVersion = "2023-10"
	}
	if cfg.Monday.POBoardID == 0 {
		cfg.Monday.POBoardID = 2562607316
	}
	if cfg.Monday.ContactBoardID == 0 {
		cfg.Monday.ContactBoardID = 2738875399
	}
	if cfg.Monday.RequestsPerMinute == 0 {
		cfg.Monday.RequestsPerMinute = 120
	}
	if cfg.Monday.MaxAttempts == 0 {
		cfg.Monday.MaxAttempts = 3
	}

	if cfg.Xero.TokenURL == "" {
		cfg.Xero.TokenURL = "https://identity.xero.com/connect/token"
	}
	if cfg.Xero.APIBaseURL == "" {
		cfg.Xero.APIBaseURL = "https://api.xero.com/api.xro/2.0"
	}
	if cfg.Xero.RateLimitWait == 0 {
		cfg.Xero.RateLimitWait = 65 * time.Second
	}
	if cfg.Xero.BankAccountCode == "" {
		cfg.Xero.BankAccountCode = "090"
	}

	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-3.5-turbo"
	}
	if cfg.OpenAI.MaxTokens == 0 {
		cfg.OpenAI.MaxTokens = 1000
	}

	if cfg.OCR.TesseractPath == "" {
		cfg.OCR.TesseractPath = "tesseract"
	}
	if cfg.OCR.RasterizerPath == "" {
		cfg.OCR.RasterizerPath = "pdftoppm"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = 2 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres, mysql or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Cursor.Backend {
	case "file":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("cursor.backend=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("cursor.backend must be file or redis, got %q", c.Cursor.Backend)
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.PyroscopeAddress == "" {
		return fmt.Errorf("telemetry.pyroscope_address is required when profiling is enabled")
	}

	if c.App.Env == "production" {
		if c.Dropbox.AppSecret == "" {
			return fmt.Errorf("dropbox.app_secret is required in production")
		}
		if c.Monday.SigningSecret == "" && c.Monday.WebhookToken == "" {
			return fmt.Errorf("monday.signing_secret or monday.webhook_token is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}
	return nil
}

// DSN returns the driver-specific connection string with escaped values
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "sqlite":
		return d.Path
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBName)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
