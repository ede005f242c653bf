package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tasknlp/internal/logger"
)

const EnvPrefix = "TASKNLP"

// Config holds the service configuration. Use Load to build one.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Models    ModelsConfig    `mapstructure:"models" yaml:"models"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
}

type ServerConfig struct {
	Host         string   `mapstructure:"host" yaml:"host"`
	Port         int      `mapstructure:"port" yaml:"port"`
	CORSOrigins  []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	AuditFile string `mapstructure:"audit_file" yaml:"audit_file"`
}

type ModelsConfig struct {
	Root          string `mapstructure:"root" yaml:"root"`
	LocalDir      string `mapstructure:"local_dir" yaml:"local_dir"`
	Tokenizer     string `mapstructure:"tokenizer" yaml:"tokenizer"`
	NER           string `mapstructure:"ner" yaml:"ner"`
	Type          string `mapstructure:"type" yaml:"type"`
	Baseline      string `mapstructure:"baseline" yaml:"baseline"`
	AllowDownload bool   `mapstructure:"allow_download" yaml:"allow_download"`
}

type InferenceConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	MaxSeqLen     int           `mapstructure:"max_seq_len" yaml:"max_seq_len"`
	SharedLibrary string        `mapstructure:"shared_library" yaml:"shared_library"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

var defaults = map[string]interface{}{
	"server.host":              "0.0.0.0",
	"server.port":              8000,
	"server.cors_origins":      []string{"*"},
	"server.max_body_bytes":    1 << 20,
	"log.level":                "info",
	"log.audit_file":           "~/.tasknlp/audit.log",
	"models.root":              "~/.tasknlp/models",
	"models.local_dir":         "./models",
	"models.tokenizer":         "tasks-tokenizer",
	"models.ner":               "tasks-ner",
	"models.type":              "tasks-type",
	"models.baseline":          "camembert-base",
	"models.allow_download":    true,
	"inference.backend":        "python",
	"inference.max_seq_len":    512,
	"inference.shared_library": "",
	"inference.timeout":        "30s",
}

// Load reads configFile, or config.yaml from . and ~/.tasknlp when configFile
// is empty, then applies TASKNLP_* environment overrides. A missing config
// file is only an error when configFile names it.
func Load(configFile string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(expandHome("~/.tasknlp"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.AuditFile = expandHome(cfg.Log.AuditFile)
	cfg.Models.Root = expandHome(cfg.Models.Root)
	cfg.Models.LocalDir = expandHome(cfg.Models.LocalDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid server.max_body_bytes %d", c.Server.MaxBodyBytes)
	}
	if c.Inference.MaxSeqLen < 3 {
		return fmt.Errorf("invalid inference.max_seq_len %d", c.Inference.MaxSeqLen)
	}
	if c.Inference.Timeout < 0 {
		return fmt.Errorf("invalid inference.timeout %s", c.Inference.Timeout)
	}
	return nil
}

// loadDotEnv loads a .env file from the working directory if present.
// Variables already set in the environment win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.GetLogger().Warnf("unable to load .env: %v", err)
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
