// Package config reads server settings from an optional file, a .env file and
// JUDGEMENT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "JUDGEMENT"

type Config struct {
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
	Store  StoreConfig  `mapstructure:"store"`
	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Debug  DebugConfig  `mapstructure:"debug"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// StoreConfig selects the snapshot slot backend; an empty RedisAddr keeps
// slots in process memory.
type StoreConfig struct {
	RedisAddr     string        `mapstructure:"redisAddr"`
	RedisPassword string        `mapstructure:"redisPassword"`
	RedisDB       int           `mapstructure:"redisDB"`
	KeyVersion    string        `mapstructure:"keyVersion"`
	TTL           time.Duration `mapstructure:"ttl"` // 0 keeps slots forever
}

type RemoteConfig struct {
	Driver  string `mapstructure:"driver"` // "", "memory" or "postgres"
	DSN     string `mapstructure:"dsn"`
	Feed    string `mapstructure:"feed"` // "postgres" or "nats"
	NatsURL string `mapstructure:"natsURL"`
}

type SyncConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	TokenTTL time.Duration `mapstructure:"tokenTTL"`
}

type DebugConfig struct {
	Statsviz bool `mapstructure:"statsviz"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("store.redisAddr", "")
	v.SetDefault("store.redisPassword", "")
	v.SetDefault("store.redisDB", 0)
	v.SetDefault("store.keyVersion", "v5")
	v.SetDefault("store.ttl", time.Duration(0))
	v.SetDefault("remote.driver", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.feed", "postgres")
	v.SetDefault("remote.natsURL", "nats://127.0.0.1:4222")
	v.SetDefault("sync.debounce", 350*time.Millisecond)
	v.SetDefault("sync.tokenTTL", 30*time.Second)
	v.SetDefault("debug.statsviz", false)
}

// Load reads configFile when it is not empty. A missing .env is fine.
func Load(configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Remote.Driver {
	case "", "memory":
	case "postgres":
		if c.Remote.DSN == "" {
			return errors.New("remote.dsn is required for the postgres driver")
		}
		switch c.Remote.Feed {
		case "postgres":
		case "nats":
			if c.Remote.NatsURL == "" {
				return errors.New("remote.natsURL is required for the nats feed")
			}
		default:
			return fmt.Errorf("unknown remote.feed %q", c.Remote.Feed)
		}
	default:
		return fmt.Errorf("unknown remote.driver %q", c.Remote.Driver)
	}
	if c.Store.KeyVersion == "" {
		return errors.New("store.keyVersion must not be empty")
	}
	return nil
}
