package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "WXBOT_"

// Config is the configuration of the bot. Values are read from the YAML file first and then
// overridden by WXBOT_* environment variables, which may come from a .env file.
type Config struct {
	Database string `yaml:"database"`
	Account  string `yaml:"account"`
	// Region is the region code browser fingerprints are generated for, e.g. CN.
	Region string `yaml:"region"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`

	Proxy       string `yaml:"proxy"`
	BrowserTLS  bool   `yaml:"browser_tls"`
	MetricsAddr string `yaml:"metrics_addr"`

	AutoMarkAsRead bool   `yaml:"auto_mark_as_read"`
	Echo           bool   `yaml:"echo"`
	PUIDPath       string `yaml:"puid_path"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Database:   "file:wxbot.db?_foreign_keys=on",
		Region:     "CN",
		BrowserTLS: true,
		Echo:       true,
	}
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads the config file (if it exists), the .env file (if it exists) and the environment.
func LoadConfig(path, envFile string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	} else if err == nil {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err = godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func envString(key string, into *string) {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		*into = val
	}
}

func envBool(key string, into *bool) {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*into = parsed
		}
	}
}

func (cfg *Config) applyEnv() {
	envString("DATABASE", &cfg.Database)
	envString("ACCOUNT", &cfg.Account)
	envString("REGION", &cfg.Region)
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envBool("LOG_JSON", &cfg.Logging.JSON)
	envString("PROXY", &cfg.Proxy)
	envBool("BROWSER_TLS", &cfg.BrowserTLS)
	envString("METRICS_ADDR", &cfg.MetricsAddr)
	envBool("AUTO_MARK_AS_READ", &cfg.AutoMarkAsRead)
	envBool("ECHO", &cfg.Echo)
	envString("PUID_PATH", &cfg.PUIDPath)
}

// EnsureAccount generates an account name if none is configured and appends it to the .env file,
// so the next run finds the same session.
func (cfg *Config) EnsureAccount(envFile string) (bool, error) {
	if cfg.Account != "" {
		return false, nil
	}
	cfg.Account = uuid.NewString()
	env, err := godotenv.Read(envFile)
	if errors.Is(err, os.ErrNotExist) {
		env = make(map[string]string)
	} else if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", envFile, err)
	}
	env[envPrefix+"ACCOUNT"] = cfg.Account
	if err = godotenv.Write(env, envFile); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", envFile, err)
	}
	return true, nil
}
