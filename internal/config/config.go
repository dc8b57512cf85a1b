package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Google     GoogleConfig     `yaml:"google"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Bot        BotConfig        `yaml:"bot"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// FrontendURL адрес Mini App, используется в кнопках web_app
	FrontendURL string `yaml:"frontend_url"`
}

// IsDevelopment reports whether internal error details may be exposed to clients.
func (a AppConfig) IsDevelopment() bool {
	return strings.EqualFold(a.Environment, "development")
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP        APIHTTPConfig        `yaml:"http"`
	CORS        APICORSConfig        `yaml:"cors"`
	RateLimit   APIRateLimitConfig   `yaml:"rate_limit"`
	Integration APIIntegrationConfig `yaml:"integration"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIRateLimitConfig limits requests per identity (or client IP) for the Mini App API.
type APIRateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// APIIntegrationConfig protects read-only endpoints used by external reporting tools.
type APIIntegrationConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
	RPS          float64        `yaml:"rps"`
	Burst        int            `yaml:"burst"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	InitDataMaxAge     time.Duration `yaml:"init_data_max_age"` // 0 отключает проверку auth_date
	BootstrapPasswords bool          `yaml:"bootstrap_passwords"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
}

// Enabled reports whether Sheets sync is configured.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.SpreadsheetID != ""
}

type UploadsConfig struct {
	Dir       string `yaml:"dir"`
	URLPrefix string `yaml:"url_prefix"`
	MaxBytes  int64  `yaml:"max_bytes"`
}

type JobsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ReminderSchedule  string `yaml:"reminder_schedule"`
	ReconcileSchedule string `yaml:"reconcile_schedule"`
	Timezone          string `yaml:"timezone"`
	FanOutWorkers     int    `yaml:"fan_out_workers"`
}

type BotConfig struct {
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"`
	StateTTL          int `yaml:"state_ttl"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}

	return ValidateAPIKeys(c.API.Integration.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" || k.Extra == "" {
			return fmt.Errorf("api key '%s' must have key and extra", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key found for '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "flariki"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.API.RateLimit.Requests == 0 {
		c.API.RateLimit.Requests = 120
	}
	if c.API.RateLimit.Window == 0 {
		c.API.RateLimit.Window = time.Minute
	}
	if c.API.Integration.HeaderAPIKey == "" {
		c.API.Integration.HeaderAPIKey = "x-api-key"
	}
	if c.API.Integration.HeaderExtra == "" {
		c.API.Integration.HeaderExtra = "x-api-extra"
	}
	if c.API.Integration.Burst == 0 {
		c.API.Integration.Burst = 5
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.URLPrefix == "" {
		c.Uploads.URLPrefix = "/uploads"
	}
	if c.Uploads.MaxBytes == 0 {
		c.Uploads.MaxBytes = 10 << 20
	}

	// Пятница 10:00, напоминания об отчетах
	if c.Jobs.ReminderSchedule == "" {
		c.Jobs.ReminderSchedule = "0 10 * * 5"
	}
	if c.Jobs.ReconcileSchedule == "" {
		c.Jobs.ReconcileSchedule = "0 3 * * *"
	}
	if c.Jobs.Timezone == "" {
		c.Jobs.Timezone = "Europe/Moscow"
	}
	if c.Jobs.FanOutWorkers == 0 {
		c.Jobs.FanOutWorkers = 4
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 4 * * *"
	}

	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = 20
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = 60
	}
	if c.Bot.StateTTL == 0 {
		c.Bot.StateTTL = 24 * 60 * 60
	}
}
