package logger

import (
	"io"
	"os"
	"strings"

	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type options struct {
	level string
	out   io.Writer
	file  string
}

type Option func(*options)

// WithLevel переопределяет уровень окружения: debug, info, warn, error
func WithLevel(level string) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithOutput направляет вывод в w вместо stdout
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithFile пишет журнал в файл с ротацией
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// New создает логгер для окружения.
// local - цветной вывод для разработки, dev - JSON с debug, prod - JSON с info.
func New(env string, opts ...Option) *slog.Logger {
	o := &options{out: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	out := o.out
	if o.file != "" {
		out = &lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
	}

	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog(withWriter(out), withLevel(parseLevel(o.level, slog.LevelDebug)))
	case envDev:
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(o.level, slog.LevelDebug)}))
	default:
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(o.level, slog.LevelInfo)}))
	}

	return log
}

func parseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return fallback
}

// Discard логгер, который ничего не пишет
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
