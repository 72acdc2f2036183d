package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string   `mapstructure:"mode"`
	Port           int      `mapstructure:"port"`
	Secret         string   `mapstructure:"secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	DefaultRate   float64       `mapstructure:"default_rate"`
	TickPeriod    time.Duration `mapstructure:"tick_period"`
	DefaultCredit float64       `mapstructure:"default_credit"`

	RedisAddr        string `mapstructure:"redis_addr"`
	ConsultantPrefix string `mapstructure:"consultant_prefix"`

	MessageRateLimit    int           `mapstructure:"message_rate_limit"`
	MessageRateInterval time.Duration `mapstructure:"message_rate_interval"`
}

func Load() (*Config, error) {
	// Optional .env for local development; real deployments set env directly.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("default_rate", 0.5)
	v.SetDefault("tick_period", "1s")
	v.SetDefault("default_credit", 999999.0)
	v.SetDefault("consultant_prefix", "consultant_")
	v.SetDefault("message_rate_limit", 20)
	v.SetDefault("message_rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Rate: %.2f/s\n", cfg.Mode, cfg.Port, cfg.DefaultRate)
	return &cfg, nil
}
