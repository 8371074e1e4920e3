package config

import (
	"errors"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// DefaultEntityTypes коллекции, которые сервер обслуживает без явной настройки
var DefaultEntityTypes = []string{"student", "class", "payment", "event", "activity", "teacher"}

type Config struct {
	Env         string
	DB          DB
	Server      Server
	Logger      Logger
	EntityTypes []string
}

type DB struct {
	DatabaseURI string `env:"DATABASE_URI"`
	Migrations  string `env:"MIGRATIONS_PATH"`
}

type Server struct {
	RunAddress string `env:"RUN_ADDRESS"`
}

type Logger struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load читает настройки из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	_ = godotenv.Load(envPath)

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("app_env", EnvProd)
	v.SetDefault("run_address", ":8080")
	v.SetDefault("log_level", "info")

	config := Config{
		Env: v.GetString("app_env"),
		DB: DB{
			DatabaseURI: v.GetString("database_uri"),
			Migrations:  v.GetString("migrations_path"),
		},
		Server:      Server{RunAddress: v.GetString("run_address")},
		Logger:      Logger{LogLevel: v.GetString("log_level")},
		EntityTypes: splitTypes(v.GetString("entity_types")),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoad() *Config {
	config, err := Load()
	if err != nil {
		log.Fatalln("invalid server configuration:", err)
	}
	return config
}

func (c *Config) validate() error {
	if c.DB.DatabaseURI == "" {
		return errors.New("DATABASE_URI is required")
	}
	if c.Server.RunAddress == "" {
		return errors.New("RUN_ADDRESS is required")
	}
	return nil
}

func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

func splitTypes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), DefaultEntityTypes...)
	}

	var types []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}
