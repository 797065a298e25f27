package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents application configuration. Defaults are applied first,
// then the YAML config file (if present), then environment overrides.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Queue      QueueConfig      `yaml:"queue"`
	Model      ModelConfig      `yaml:"model"`
	LoRA       LoRAConfig       `yaml:"lora"`
	Outputs    OutputsConfig    `yaml:"outputs"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Safety     SafetyConfig     `yaml:"safety"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

type ServerConfig struct {
	Host                string   `yaml:"host"`
	Port                string   `yaml:"port"`
	CORSOrigins         []string `yaml:"cors_origins"`
	RateLimitPerMin     int      `yaml:"rate_limit_per_minute"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int      `yaml:"idle_timeout_seconds"`
}

func (s ServerConfig) ReadTimeout() time.Duration  { return time.Duration(s.ReadTimeoutSeconds) * time.Second }
func (s ServerConfig) WriteTimeout() time.Duration { return time.Duration(s.WriteTimeoutSeconds) * time.Second }
func (s ServerConfig) IdleTimeout() time.Duration  { return time.Duration(s.IdleTimeoutSeconds) * time.Second }

type QueueConfig struct {
	MaxSize            int `yaml:"max_size"`
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds"`
	CleanupAgeSeconds  int `yaml:"cleanup_age_seconds"`
}

func (q QueueConfig) StopTimeout() time.Duration {
	return time.Duration(q.StopTimeoutSeconds) * time.Second
}

func (q QueueConfig) CleanupAge() time.Duration {
	return time.Duration(q.CleanupAgeSeconds) * time.Second
}

type ModelConfig struct {
	BasePath     string `yaml:"base_path"`
	LoadOnStart  bool   `yaml:"load_on_start"`
	DefaultSteps int    `yaml:"default_steps"`
}

type LoRAConfig struct {
	BaseDir          string             `yaml:"base_dir"`
	CacheDir         string             `yaml:"cache_dir"`
	MaxCached        int                `yaml:"max_cached"`
	NormalizeWeights bool               `yaml:"normalize_weights"`
	DefaultWeights   map[string]float64 `yaml:"default_weights"`
}

type OutputsConfig struct {
	RunsDir string `yaml:"runs_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MonitoringConfig struct {
	Enabled bool `yaml:"enabled"`
}

type SafetyConfig struct {
	MaxPromptLength int      `yaml:"max_prompt_length"`
	BlockedWords    []string `yaml:"blocked_words"`
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "signsmith",
			Env:  "development",
		},
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                "5000",
			CORSOrigins:         []string{"http://localhost:5173", "http://localhost:3000"},
			RateLimitPerMin:     30,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 120,
			IdleTimeoutSeconds:  60,
		},
		Queue: QueueConfig{
			MaxSize:            10,
			StopTimeoutSeconds: 5,
			CleanupAgeSeconds:  3600,
		},
		Model: ModelConfig{
			BasePath:     "models/base",
			LoadOnStart:  true,
			DefaultSteps: 30,
		},
		LoRA: LoRAConfig{
			BaseDir:          "models/loras",
			CacheDir:         "models/adapters_cache",
			MaxCached:        10,
			NormalizeWeights: true,
			DefaultWeights: map[string]float64{
				"sign_type":   1.0,
				"mounting":    0.9,
				"perspective": 0.7,
				"environment": 0.9,
				"lighting":    0.8,
				"material":    0.8,
			},
		},
		Outputs: OutputsConfig{
			RunsDir: "outputs/inference_runs",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
		},
		Safety: SafetyConfig{
			MaxPromptLength: 1000,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// (SIGNSMITH_CONFIG, falling back to configs/app.yaml) and environment
// overrides for the settings that commonly change between machines.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	path := getEnv("SIGNSMITH_CONFIG", filepath.Join("configs", "app.yaml"))
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Outputs.RunsDir = getEnv("RUNS_DIR", cfg.Outputs.RunsDir)
	cfg.LoRA.BaseDir = getEnv("LORA_DIR", cfg.LoRA.BaseDir)
	cfg.Queue.MaxSize = getEnvInt("QUEUE_MAX_SIZE", cfg.Queue.MaxSize)
	cfg.Server.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.Server.RateLimitPerMin)

	if cfg.Queue.MaxSize < 1 {
		return nil, fmt.Errorf("queue.max_size must be at least 1, got %d", cfg.Queue.MaxSize)
	}
	if cfg.Server.Port == "" {
		return nil, fmt.Errorf("server.port is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
