package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/pkg/logger"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Backup    BackupConfig    `yaml:"backup" json:"backup"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
	S3        S3Config        `yaml:"s3" json:"s3"`
	Media     MediaConfig     `yaml:"media" json:"media"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	Settings  SettingsConfig  `yaml:"settings" json:"settings"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"SERVER_HOST" validate:"required"`
	Port            string        `yaml:"port" json:"port" env:"SERVER_PORT" validate:"required,numeric"`
	Mode            string        `yaml:"mode" json:"mode" env:"GIN_MODE" validate:"oneof=debug release test"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"SERVER_READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// StoreConfig selects and configures the backing entity store
type StoreConfig struct {
	Driver   string         `yaml:"driver" json:"driver" env:"STORE_DRIVER" validate:"oneof=memory sqlite postgres badger cms"`
	PageSize int            `yaml:"page_size" json:"page_size" env:"STORE_PAGE_SIZE" validate:"gte=1,lte=10000"`
	SQLite   SQLiteConfig   `yaml:"sqlite" json:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Badger   BadgerConfig   `yaml:"badger" json:"badger"`
	CMS      CMSConfig      `yaml:"cms" json:"cms"`
}

// SQLiteConfig holds the embedded database location
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path" env:"SQLITE_PATH"`
}

// PostgresConfig holds the table API connection
type PostgresConfig struct {
	DSN          string `yaml:"dsn" json:"dsn" env:"POSTGRES_DSN" sensitive:"true"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" env:"POSTGRES_MAX_OPEN_CONNS" validate:"gte=1"`
	MaxIdleConns int    `yaml:"max_idle_conns" json:"max_idle_conns" env:"POSTGRES_MAX_IDLE_CONNS" validate:"gte=0"`
}

// BadgerConfig holds the document database directory. An empty dir runs in memory.
type BadgerConfig struct {
	Dir string `yaml:"dir" json:"dir" env:"BADGER_DIR"`
}

// CMSConfig holds the headless CMS endpoint
type CMSConfig struct {
	BaseURL          string        `yaml:"base_url" json:"base_url" env:"CMS_BASE_URL" validate:"omitempty,url"`
	Token            string        `yaml:"token" json:"token" env:"CMS_TOKEN" sensitive:"true"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout" env:"CMS_TIMEOUT" validate:"gt=0"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold" env:"CMS_FAILURE_THRESHOLD" validate:"gte=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" json:"open_timeout" env:"CMS_OPEN_TIMEOUT" validate:"gt=0"`
}

// BackupConfig drives snapshot creation, import and restore
type BackupConfig struct {
	Kinds            []string `yaml:"kinds" json:"kinds" env:"BACKUP_KINDS" validate:"dive,entity_kind"`
	IDField          string   `yaml:"id_field" json:"id_field" env:"BACKUP_ID_FIELD" validate:"required"`
	ReadConcurrency  int      `yaml:"read_concurrency" json:"read_concurrency" env:"BACKUP_READ_CONCURRENCY" validate:"gte=1,lte=32"`
	MaxImportBytes   ByteSize `yaml:"max_import_bytes" json:"max_import_bytes" env:"BACKUP_MAX_IMPORT_BYTES" validate:"gt=0"`
	HistorySize      int      `yaml:"history_size" json:"history_size" env:"BACKUP_HISTORY_SIZE" validate:"gte=1"`
	FilenameLocation string   `yaml:"filename_location" json:"filename_location" env:"BACKUP_FILENAME_LOCATION" validate:"omitempty,timezone"`
}

// EntityKinds returns the configured kinds in order, followed by any required kind the list omits
func (b BackupConfig) EntityKinds() []entities.Kind {
	seen := make(map[entities.Kind]bool, len(b.Kinds))
	kinds := make([]entities.Kind, 0, len(b.Kinds)+len(entities.RequiredKinds))
	for _, k := range b.Kinds {
		kind := entities.Kind(strings.TrimSpace(k))
		if kind == "" || seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	for _, kind := range entities.RequiredKinds {
		if !seen[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Location returns the zone backup filenames are stamped in
func (b BackupConfig) Location() *time.Location {
	if b.FilenameLocation == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(b.FilenameLocation)
	if err != nil {
		return time.Local
	}
	return loc
}

// SecurityConfig holds operator authentication configuration
type SecurityConfig struct {
	EnableAuth     bool     `yaml:"enable_auth" json:"enable_auth" env:"SECURITY_AUTH_ENABLED"`
	JWTSecret      string   `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET" sensitive:"true"`
	AdminRole      string   `yaml:"admin_role" json:"admin_role" env:"SECURITY_ADMIN_ROLE" validate:"required"`
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies" env:"TRUSTED_PROXIES" validate:"dive,ip|cidr"`
}

// S3Config holds object storage configuration for signed uploads
type S3Config struct {
	Enabled    bool          `yaml:"enabled" json:"enabled" env:"S3_ENABLED"`
	Endpoint   string        `yaml:"endpoint" json:"endpoint" env:"S3_ENDPOINT" validate:"omitempty,url"`
	Region     string        `yaml:"region" json:"region" env:"S3_REGION" validate:"required"`
	Bucket     string        `yaml:"bucket" json:"bucket" env:"S3_BUCKET"`
	AccessKey  string        `yaml:"access_key" json:"access_key" env:"S3_ACCESS_KEY" sensitive:"true"`
	SecretKey  string        `yaml:"secret_key" json:"secret_key" env:"S3_SECRET_KEY" sensitive:"true"`
	PathStyle  bool          `yaml:"path_style" json:"path_style" env:"S3_PATH_STYLE"`
	PresignTTL time.Duration `yaml:"presign_ttl" json:"presign_ttl" env:"S3_PRESIGN_TTL" validate:"gte=1s,lte=168h"`
}

// MediaConfig holds image compression defaults
type MediaConfig struct {
	MaxUploadBytes ByteSize `yaml:"max_upload_bytes" json:"max_upload_bytes" env:"MEDIA_MAX_UPLOAD_BYTES" validate:"gt=0"`
	MaxImageBytes  ByteSize `yaml:"max_image_bytes" json:"max_image_bytes" env:"MEDIA_MAX_IMAGE_BYTES" validate:"gt=0"`
	MaxDimension   int      `yaml:"max_dimension" json:"max_dimension" env:"MEDIA_MAX_DIMENSION" validate:"gte=16"`
	Quality        int      `yaml:"quality" json:"quality" env:"MEDIA_QUALITY" validate:"gte=1,lte=100"`
	Format         string   `yaml:"format" json:"format" env:"MEDIA_FORMAT" validate:"oneof=jpeg png"`
	MaxPixels      int      `yaml:"max_pixels" json:"max_pixels" env:"MEDIA_MAX_PIXELS" validate:"gte=256"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT" validate:"oneof=json text"`
	Output string `yaml:"output" json:"output" env:"LOG_OUTPUT" validate:"required"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"path" json:"path" env:"METRICS_PATH" validate:"startswith=/"`
}

// RateLimitConfig holds per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute" env:"RATE_LIMIT_RPM" validate:"gte=1"`
	BurstSize         int  `yaml:"burst_size" json:"burst_size" env:"RATE_LIMIT_BURST" validate:"gte=1"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled" env:"CORS_ENABLED"`
	AllowedOrigins   []string      `yaml:"allowed_origins" json:"allowed_origins" env:"CORS_ORIGINS" validate:"dive,origin"`
	AllowedMethods   []string      `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string      `yaml:"allowed_headers" json:"allowed_headers"`
	ExposedHeaders   []string      `yaml:"exposed_headers" json:"exposed_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" json:"allow_credentials" env:"CORS_CREDENTIALS"`
	MaxAge           time.Duration `yaml:"max_age" json:"max_age" env:"CORS_MAX_AGE"`
}

// SettingsConfig seeds defaults for runtime flags
type SettingsConfig struct {
	Defaults map[string]string `yaml:"defaults" json:"defaults"`
}

// ConfigManager manages configuration loading and validation
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	envFiles   []string
	watchers   []func(*Config)
}

// NewConfigManager creates a new configuration manager. envFiles are loaded into the
// process environment before every load; missing files are ignored.
func NewConfigManager(envFiles ...string) *ConfigManager {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &ConfigManager{
		envFiles: envFiles,
		watchers: make([]func(*Config), 0),
	}
}

// Load loads configuration from defaults, the YAML file and environment variables
func (cm *ConfigManager) Load(configPath string) (*Config, error) {
	if err := cm.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	config := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cm.loadFromFile(config, configPath); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.mu.Lock()
	cm.configPath = configPath
	cm.config = config
	cm.mu.Unlock()

	cm.logConfigSummary(config)

	return config, nil
}

// Reload reloads the configuration and notifies watchers.
// A failed reload keeps the previous configuration.
func (cm *ConfigManager) Reload() error {
	cm.mu.RLock()
	path := cm.configPath
	cm.mu.RUnlock()

	if path == "" {
		return errors.New("no config path set")
	}

	config, err := cm.Load(path)
	if err != nil {
		return err
	}

	cm.mu.RLock()
	watchers := append([]func(*Config){}, cm.watchers...)
	cm.mu.RUnlock()

	for _, watcher := range watchers {
		watcher(config)
	}

	return nil
}

// Watch adds a configuration change watcher
func (cm *ConfigManager) Watch(watcher func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigPath returns the file the configuration was loaded from
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

func (cm *ConfigManager) loadDotEnv() error {
	for _, file := range cm.envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}
	return nil
}

// loadFromFile loads configuration from a YAML file
func (cm *ConfigManager) loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

// loadFromEnv loads configuration from environment variables
func (cm *ConfigManager) loadFromEnv(config *Config) error {
	return cm.setEnvVars(reflect.ValueOf(config).Elem())
}

// setEnvVars walks nested structs and applies every `env` tag that is set
func (cm *ConfigManager) setEnvVars(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			if field.Kind() == reflect.Struct {
				if err := cm.setEnvVars(field); err != nil {
					return err
				}
			}
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := cm.setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("%s: %w", envTag, err)
		}
	}

	return nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	byteSizeType = reflect.TypeOf(ByteSize(0))
)

// setFieldValue sets a field value from an environment variable string
func (cm *ConfigManager) setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch field.Type() {
		case durationType:
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		case byteSizeType:
			size, err := ParseSize(value)
			if err != nil {
				return err
			}
			field.SetInt(size)
		default:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Bool:
		field.SetBool(parseBool(value))
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		values := make([]string, 0)
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	kinds := make([]string, 0, len(entities.RequiredKinds))
	for _, kind := range entities.RequiredKinds {
		kinds = append(kinds, string(kind))
	}

	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:   "sqlite",
			PageSize: 1000,
			SQLite:   SQLiteConfig{Path: "./marketadmin.db"},
			Postgres: PostgresConfig{MaxOpenConns: 10, MaxIdleConns: 2},
			CMS: CMSConfig{
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Backup: BackupConfig{
			Kinds:           kinds,
			IDField:         entities.DefaultIDField,
			ReadConcurrency: 4,
			MaxImportBytes:  256 << 20,
			HistorySize:     100,
		},
		Security: SecurityConfig{
			EnableAuth: true,
			AdminRole:  "admin",
		},
		S3: S3Config{
			Region:     "us-east-1",
			PresignTTL: 15 * time.Minute,
		},
		Media: MediaConfig{
			MaxUploadBytes: 32 << 20,
			MaxImageBytes:  1 << 20,
			MaxDimension:   1920,
			Quality:        82,
			Format:         "jpeg",
			MaxPixels:      40_000_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 120,
			BurstSize:         20,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			ExposedHeaders: []string{"Content-Disposition", "X-Backup-Counts", "X-Request-ID",
				"X-Original-Size", "X-Compressed-Size", "X-Compression-Fallback"},
			MaxAge: 12 * time.Hour,
		},
		Settings: SettingsConfig{
			Defaults: map[string]string{},
		},
	}
}

// logConfigSummary logs a summary of the configuration without sensitive data
func (cm *ConfigManager) logConfigSummary(config *Config) {
	fields := map[string]interface{}{
		"address":         config.Server.Address(),
		"store":           config.Store.Driver,
		"kinds":           len(config.Backup.EntityKinds()),
		"max_import":      FormatSize(int64(config.Backup.MaxImportBytes)),
		"auth":            config.Security.EnableAuth,
		"signed_uploads":  config.S3.Enabled,
		"rate_limit":      config.RateLimit.Enabled,
		"metrics":         config.Metrics.Enabled,
		"settings_seeded": len(config.Settings.Defaults),
	}
	if config.Security.JWTSecret != "" {
		fields["jwt_secret"] = fingerprint(config.Security.JWTSecret)
	}
	if config.S3.AccessKey != "" {
		fields["s3_access_key"] = fingerprint(config.S3.AccessKey)
	}
	logger.Info("Configuration loaded", fields)
}

func fingerprint(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:8]) + "..."
}
