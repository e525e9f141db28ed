package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the working
// directory the server starts in.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string `yaml:"port"`
	LogLevel          string `yaml:"logLevel"`
	DatabaseURL       string `yaml:"databaseURL"`
	GeminiAPIKey      string `yaml:"geminiAPIKey"`
	GenerationModel   string `yaml:"generationModel"`
	CatalogBaseURL    string `yaml:"catalogBaseURL"`
	CoversBaseURL     string `yaml:"coversBaseURL"`
	SessionBackend    string `yaml:"sessionBackend"` // jwt, redis, or memory
	SessionSecret     string `yaml:"sessionSecret"`
	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`
	DailyMessageLimit int    `yaml:"dailyMessageLimit"`
	HistoryLimit      int    `yaml:"historyLimit"`
	ContextLimit      int    `yaml:"contextLimit"`
	AuthRatePerMinute int    `yaml:"authRatePerMinute"`
	TrustForwardedFor bool   `yaml:"trustForwardedFor"`
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is loaded first so local secrets stay out of the YAML.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("SESSION_BACKEND"); v != "" {
		cfg.SessionBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DAILY_MESSAGE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.DailyMessageLimit = n
		}
	}
	if v := os.Getenv("AUTH_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.AuthRatePerMinute = n
		}
	}
	if v := os.Getenv("TRUST_FORWARDED_FOR"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.TrustForwardedFor = b
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gemini-2.0-flash"
	}
	if cfg.SessionBackend == "" {
		cfg.SessionBackend = "memory"
	}
	if cfg.DailyMessageLimit == 0 {
		cfg.DailyMessageLimit = 10
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.ContextLimit == 0 {
		cfg.ContextLimit = 5
	}
}

// validateConfig checks required fields. DatabaseURL and GeminiAPIKey may be
// empty: the server then runs with the in-memory store and the canned
// missing-key fallback, which keeps local development keyless.
func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.SessionBackend {
	case "memory":
	case "jwt":
		if len(cfg.SessionSecret) < 32 {
			return errors.New("config: sessionSecret of at least 32 bytes is required for the jwt backend (set in config.yaml or SESSION_SECRET)")
		}
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis session backend")
		}
	default:
		return fmt.Errorf("config: unknown sessionBackend %q (want jwt, redis, or memory)", cfg.SessionBackend)
	}
	if cfg.DailyMessageLimit < 0 {
		return errors.New("config: dailyMessageLimit must be >= 0")
	}
	if cfg.AuthRatePerMinute < 0 {
		return errors.New("config: authRatePerMinute must be >= 0")
	}
	if cfg.AuthRatePerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when authRatePerMinute is set")
	}
	return nil
}
