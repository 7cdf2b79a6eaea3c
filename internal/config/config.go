package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	RelayScopeRoom = "room"
	RelayScopeAny  = "any"

	SlowConsumerDrop       = "drop"
	SlowConsumerDisconnect = "disconnect"

	DefaultTokenTTL       = 24 * time.Hour
	DefaultRedeemInterval = time.Minute
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RedeemLimit    int           `mapstructure:"redeem_limit"`
	RedeemInterval time.Duration `mapstructure:"redeem_interval"`

	RelayScope    string `mapstructure:"relay_scope"`
	SlowConsumer  string `mapstructure:"slow_consumer"`
	StatsSchedule string `mapstructure:"stats_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("token_ttl", DefaultTokenTTL)
	v.SetDefault("redeem_limit", 10)
	v.SetDefault("redeem_interval", DefaultRedeemInterval)
	v.SetDefault("relay_scope", RelayScopeRoom)
	v.SetDefault("slow_consumer", SlowConsumerDrop)
	v.SetDefault("stats_schedule", "@every 5m")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev when unset), then lets
// HUSH_* environment variables override individual keys.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("HUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Secret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.Secret = secret
		log.Warn().Str("module", "config").Msg("no session secret configured, generated an ephemeral one")
	}

	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("relay_scope", cfg.RelayScope).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.TokenTTL <= 0:
		return fmt.Errorf("config: token_ttl must be positive")
	case c.SendBuffer <= 0:
		return fmt.Errorf("config: send_buffer must be positive")
	case c.RedeemLimit <= 0 || c.RedeemInterval <= 0:
		return fmt.Errorf("config: redeem_limit and redeem_interval must be positive")
	case c.RelayScope != RelayScopeRoom && c.RelayScope != RelayScopeAny:
		return fmt.Errorf("config: relay_scope %q, want %q or %q", c.RelayScope, RelayScopeRoom, RelayScopeAny)
	case c.SlowConsumer != SlowConsumerDrop && c.SlowConsumer != SlowConsumerDisconnect:
		return fmt.Errorf("config: slow_consumer %q, want %q or %q", c.SlowConsumer, SlowConsumerDrop, SlowConsumerDisconnect)
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
