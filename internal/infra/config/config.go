package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Quota    QuotaConfig    `mapstructure:"quota" yaml:"quota"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir           string        `mapstructure:"out_dir" yaml:"out_dir"`
	MaxConcurrent    int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	ChunkSize        int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type QueueConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BackoffBase  time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
}

type StoreConfig struct {
	// Driver is one of "file", "sqlite" or "postgres"
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type QuotaConfig struct {
	StatePath    string        `mapstructure:"state_path" yaml:"state_path"`
	HeaderPrefix string        `mapstructure:"header_prefix" yaml:"header_prefix"`
	FallbackWait time.Duration `mapstructure:"fallback_wait" yaml:"fallback_wait"`
}

type ResolverConfig struct {
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type APIConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

const defaultPath = "config.yaml"

// Load reads path (falling back to /config/config.yaml) and applies
// MODFETCH_* environment overrides. A missing default file is not an
// error: every setting has a usable default.
func Load(path string) (*Config, error) {
	explicit := path != "" && path != defaultPath
	if path == "" {
		path = defaultPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		// Docker images mount their config under /config
		if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
			path = "/config/config.yaml"
		} else {
			path = ""
		}
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("MODFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.max_concurrent", 3)
	v.SetDefault("download.chunk_size", 64*1024)
	v.SetDefault("download.progress_interval", 100*time.Millisecond)
	v.SetDefault("download.timeout", 0)
	v.SetDefault("download.user_agent", "modfetch/1.0")
	v.SetDefault("queue.poll_interval", time.Second)
	v.SetDefault("queue.backoff_base", 2*time.Second)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "./data/queue.json")
	v.SetDefault("store.dsn", "")
	v.SetDefault("quota.state_path", "./data/quota.json")
	v.SetDefault("quota.header_prefix", "X-RL-")
	v.SetDefault("quota.fallback_wait", time.Minute)
	v.SetDefault("resolver.api_key", "")
	v.SetDefault("resolver.timeout", 30*time.Second)
	v.SetDefault("resolver.user_agent", "modfetch/1.0")
	v.SetDefault("log.path", "modfetch.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("api.url", "http://127.0.0.1:8080")
}

func (c *Config) validate() error {
	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	if c.Download.MaxConcurrent <= 0 {
		c.Download.MaxConcurrent = 3
	}

	if c.Download.ChunkSize <= 0 {
		c.Download.ChunkSize = 64 * 1024
	}

	if c.Queue.MaxRetries <= 0 {
		return errors.New("queue.max_retries must be at least 1")
	}

	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = time.Second
	}

	switch c.Store.Driver {
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for driver \"postgres\"")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want file, sqlite or postgres)", c.Store.Driver)
	}

	if c.Quota.HeaderPrefix == "" {
		c.Quota.HeaderPrefix = "X-RL-"
	}

	return nil
}
