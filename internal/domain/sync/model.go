package sync

import (
	"time"
)

// Strategy стратегия автоматического разрешения конфликтов
type Strategy string

const (
	// StrategyNewer побеждает более поздняя правка; при равном времени данные объединяются
	StrategyNewer  Strategy = "newer"
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
	// StrategyManual оставляет все конфликты пользователю
	StrategyManual Strategy = "manual"
)

// Config параметры оркестратора
type Config struct {
	// MaxRetries после стольких неудач намерение считается окончательно проваленным; 0 без ограничения
	MaxRetries       int
	Retry            RetryPolicy
	RequestTimeout   time.Duration
	FetchConcurrency int
	Strategy         Strategy
	Retention        time.Duration
	SyncOnReconnect  bool
}

func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       5,
		Retry:            DefaultRetryPolicy(),
		RequestTimeout:   30 * time.Second,
		FetchConcurrency: 4,
		Strategy:         StrategyNewer,
		Retention:        30 * 24 * time.Hour,
		SyncOnReconnect:  true,
	}
}

// Фазы прогона синхронизации
const (
	PhaseIdle        = "idle"
	PhaseUploading   = "uploading"
	PhaseDownloading = "downloading"
	PhaseResolving   = "resolving"
)
