package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverNone     = "none"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultClassifierURL = "https://api-inference.huggingface.co/models/cardiffnlp/twitter-roberta-base-sentiment-latest"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateCapacity   int      `yaml:"rateCapacity"`
		RatePerSecond  int      `yaml:"ratePerSecond"`
		// WriteTimeout applies to every route except /analyze/batch,
		// which extends its own deadline by analysis.batchTimeout.
		WriteTimeout time.Duration `yaml:"writeTimeout"`
	} `yaml:"server"`

	// Auth maps owner ids to API keys. Empty means X-User-ID is trusted.
	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	Database struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	LocalStore struct {
		Path string `yaml:"path"`
	} `yaml:"localStore"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Classifier struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"apiKey"`
	} `yaml:"classifier"`

	AI struct {
		Provider        string `yaml:"provider"`
		Model           string `yaml:"model"`
		BaseURL         string `yaml:"baseURL"`
		OpenAIAPIKey    string `yaml:"openaiApiKey"`
		AnthropicAPIKey string `yaml:"anthropicApiKey"`
	} `yaml:"ai"`

	OCR struct {
		Binary string `yaml:"binary"`
		Lang   string `yaml:"lang"`
	} `yaml:"ocr"`

	Analysis struct {
		ExternalTimeout time.Duration `yaml:"externalTimeout"`
		BatchLimit      int           `yaml:"batchLimit"`
		BatchTimeout    time.Duration `yaml:"batchTimeout"`
		MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
		TargetLanguage  string        `yaml:"targetLanguage"`
	} `yaml:"analysis"`

	Sync struct {
		Schedule string        `yaml:"schedule"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"sync"`
}

// Path returns $CONFIG_PATH or config.yaml.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// Load baca file config.yaml (kalau ada), lalu env override dan default.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env + default saja
	default:
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	envOverrideInt(&c.Server.Port, "PORT")
	envOverride(&c.Database.Driver, "DB_DRIVER")
	envOverride(&c.Database.DSN, "DB_DSN")
	envOverride(&c.LocalStore.Path, "LOCAL_STORE_PATH")
	envOverride(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	envOverride(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	envOverride(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	envOverride(&c.Minio.BucketName, "MINIO_BUCKET")
	envOverride(&c.Minio.Region, "MINIO_REGION")
	envOverride(&c.Classifier.URL, "HUGGINGFACE_URL")
	envOverride(&c.Classifier.APIKey, "HUGGINGFACE_API_KEY")
	envOverride(&c.AI.Provider, "AI_PROVIDER")
	envOverride(&c.AI.Model, "AI_MODEL")
	envOverride(&c.AI.BaseURL, "AI_BASE_URL")
	envOverride(&c.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&c.AI.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&c.Sync.Schedule, "SYNC_SCHEDULE")

	// API_KEYS="owner1:key1,owner2:key2"
	if v := os.Getenv("API_KEYS"); v != "" {
		keys := map[string]string{}
		for _, pair := range strings.Split(v, ",") {
			owner, k, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if ok && k != "" && owner != "" {
				keys[owner] = k
			}
		}
		c.Auth.APIKeys = keys
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.RateCapacity == 0 {
		c.Server.RateCapacity = 60
	}
	if c.Server.RatePerSecond == 0 {
		c.Server.RatePerSecond = 1
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMySQL
	}
	if c.LocalStore.Path == "" {
		c.LocalStore.Path = "data/local.db"
	}
	if c.Classifier.URL == "" {
		c.Classifier.URL = defaultClassifierURL
	}
	if c.AI.Provider == "" {
		c.AI.Provider = ProviderOpenAI
	}
	if c.Analysis.ExternalTimeout == 0 {
		c.Analysis.ExternalTimeout = 10 * time.Second
	}
	if c.Analysis.BatchLimit == 0 {
		c.Analysis.BatchLimit = 50
	}
	if c.Analysis.BatchTimeout == 0 {
		c.Analysis.BatchTimeout = 5 * time.Minute
	}
	if c.Analysis.MaxUploadBytes == 0 {
		c.Analysis.MaxUploadBytes = 10 << 20
	}
	if c.Analysis.TargetLanguage == "" {
		c.Analysis.TargetLanguage = "en"
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 5 * time.Minute
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverNone:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unknown ai provider %q", c.AI.Provider))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Analysis.BatchLimit <= 0 {
		errs = append(errs, errors.New("batchLimit must be positive"))
	}
	if c.Analysis.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("maxUploadBytes must be positive"))
	}
	if c.Analysis.ExternalTimeout <= 0 {
		errs = append(errs, errors.New("externalTimeout must be positive"))
	}
	if c.Analysis.BatchTimeout <= 0 {
		errs = append(errs, errors.New("batchTimeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("writeTimeout must be positive"))
	}
	if c.Server.RateCapacity <= 0 || c.Server.RatePerSecond <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if s := strings.TrimSpace(c.Sync.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, fmt.Errorf("invalid sync schedule %q: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// DSN returns the configured DSN, or builds one for the driver from the parts.
func (c *Config) DSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Host == "" {
		return ""
	}
	if c.Database.Driver == DriverPostgres {
		return c.PostgresDSN()
	}
	return c.MySQLDSN()
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// GeneratorAPIKey is the key of the selected AI provider.
func (c *Config) GeneratorAPIKey() string {
	if c.AI.Provider == ProviderAnthropic {
		return c.AI.AnthropicAPIKey
	}
	return c.AI.OpenAIAPIKey
}

func envOverride(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envOverrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}
