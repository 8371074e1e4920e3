package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tiklay/internal/domain/sync"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultLogLevel      = "info"
	defaultEnv           = "local"
	defaultConfigDir     = ".tiklay"
	defaultDataFile      = "local.db"
	stateFile            = "state.json"
)

// DefaultEntityTypes типы сущностей, которые клиент синхронизирует без явной настройки
var DefaultEntityTypes = []string{"student", "class", "payment", "event", "activity", "teacher"}

type Config struct {
	Env            string        `mapstructure:"app_env"`
	ServerAddress  string        `mapstructure:"server_address"`
	EnableTLS      bool          `mapstructure:"enable_tls"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFile        string        `mapstructure:"log_file"`
	ConfigDir      string        `mapstructure:"config_dir"`
	DataPath       string        `mapstructure:"data_path"`
	StatePath      string        `mapstructure:"-"`
	SyncInterval   time.Duration `mapstructure:"sync_interval_seconds"`
	RequestTimeout time.Duration `mapstructure:"request_timeout_seconds"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval_seconds"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryInitial   time.Duration `mapstructure:"retry_initial_seconds"`
	RetryMax       time.Duration `mapstructure:"retry_max_seconds"`
	Retention      time.Duration `mapstructure:"retention_days"`
	Strategy       string        `mapstructure:"conflict_strategy"`
	EntityTypes    []string      `mapstructure:"entity_types"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

// Load загружает конфигурацию клиента из .env, переменных окружения
// и, если указан, YAML-файла configFile. Переменные окружения важнее файла.
func Load(configFile string) (*Config, error) {
	// Загружаем .env файл если существует
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("ошибка загрузки .env файла: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	// Устанавливаем значения по умолчанию
	v.SetDefault("app_env", defaultEnv)
	v.SetDefault("server_address", defaultServerAddress)
	v.SetDefault("enable_tls", false)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("config_dir", defaultConfigDir)
	v.SetDefault("sync_interval_seconds", 30)
	v.SetDefault("request_timeout_seconds", 30)
	v.SetDefault("probe_interval_seconds", 15)
	v.SetDefault("max_retries", 5)
	v.SetDefault("retry_initial_seconds", 1)
	v.SetDefault("retry_max_seconds", 300)
	v.SetDefault("retention_days", 30)
	v.SetDefault("conflict_strategy", string(sync.StrategyNewer))
	v.SetDefault("metrics_addr", "")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
	}

	configDir := v.GetString("config_dir")
	if configDir == defaultConfigDir {
		// Получаем домашнюю директорию пользователя
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		configDir = filepath.Join(homeDir, configDir)
	}

	dataPath := v.GetString("data_path")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, defaultDataFile)
	}

	config := &Config{
		Env:            v.GetString("app_env"),
		ServerAddress:  v.GetString("server_address"),
		EnableTLS:      v.GetBool("enable_tls"),
		LogLevel:       v.GetString("log_level"),
		LogFile:        v.GetString("log_file"),
		ConfigDir:      configDir,
		DataPath:       dataPath,
		StatePath:      filepath.Join(configDir, stateFile),
		SyncInterval:   seconds(v.GetInt("sync_interval_seconds")),
		RequestTimeout: seconds(v.GetInt("request_timeout_seconds")),
		ProbeInterval:  seconds(v.GetInt("probe_interval_seconds")),
		MaxRetries:     v.GetInt("max_retries"),
		RetryInitial:   seconds(v.GetInt("retry_initial_seconds")),
		RetryMax:       seconds(v.GetInt("retry_max_seconds")),
		Retention:      time.Duration(v.GetInt("retention_days")) * 24 * time.Hour,
		Strategy:       v.GetString("conflict_strategy"),
		EntityTypes:    entityTypes(v),
		MetricsAddr:    v.GetString("metrics_addr"),
	}

	// Валидация конфигурации
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}

	return config, nil
}

// MustLoad загружает конфигурацию клиента и паникует при ошибке
func MustLoad(configFile string) *Config {
	config, err := Load(configFile)
	if err != nil {
		panic(err.Error())
	}
	return config
}

func (c *Config) validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server_address не может быть пустым")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout_seconds должен быть положительным")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries не может быть отрицательным")
	}
	if c.RetryInitial <= 0 || c.RetryMax < c.RetryInitial {
		return fmt.Errorf("некорректные границы повторов: %s..%s", c.RetryInitial, c.RetryMax)
	}
	switch sync.Strategy(c.Strategy) {
	case sync.StrategyNewer, sync.StrategyLocal, sync.StrategyRemote, sync.StrategyManual:
	default:
		return fmt.Errorf("неизвестная стратегия разрешения конфликтов %q", c.Strategy)
	}
	if len(c.EntityTypes) == 0 {
		return fmt.Errorf("entity_types не может быть пустым")
	}
	return nil
}

// BaseURL адрес сервера со схемой
func (c *Config) BaseURL() string {
	if strings.HasPrefix(c.ServerAddress, "http://") || strings.HasPrefix(c.ServerAddress, "https://") {
		return strings.TrimRight(c.ServerAddress, "/")
	}
	if c.EnableTLS {
		return "https://" + c.ServerAddress
	}
	return "http://" + c.ServerAddress
}

// SyncConfig параметры оркестратора
func (c *Config) SyncConfig() *sync.Config {
	cfg := sync.DefaultConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.RequestTimeout = c.RequestTimeout
	cfg.Retry.InitialInterval = c.RetryInitial
	cfg.Retry.MaxInterval = c.RetryMax
	cfg.Strategy = sync.Strategy(c.Strategy)
	if c.Retention > 0 {
		cfg.Retention = c.Retention
	}
	return cfg
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// IsDev проверяет, dev ли окружение
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// entityTypes принимает как список из YAML, так и строку через запятую из окружения
func entityTypes(v *viper.Viper) []string {
	var types []string
	for _, item := range v.GetStringSlice("entity_types") {
		for _, t := range strings.Split(item, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}
	if len(types) == 0 {
		return append([]string(nil), DefaultEntityTypes...)
	}
	return types
}
