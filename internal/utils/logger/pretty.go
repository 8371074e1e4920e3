package logger

import (
	"context"
	"encoding/json"
	"io"
	stdlog "log"
	"os"

	"github.com/fatih/color"
	"golang.org/x/exp/slog"
)

type prettyConfig struct {
	out   io.Writer
	level slog.Level
}

type prettyOption func(*prettyConfig)

func withWriter(w io.Writer) prettyOption {
	return func(c *prettyConfig) {
		c.out = w
	}
}

func withLevel(l slog.Level) prettyOption {
	return func(c *prettyConfig) {
		c.level = l
	}
}

func setupPrettySlog(opts ...prettyOption) *slog.Logger {
	cfg := &prettyConfig{out: os.Stdout, level: slog.LevelDebug}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &prettyHandler{
		Handler: slog.NewJSONHandler(cfg.out, &slog.HandlerOptions{Level: cfg.level}),
		l:       stdlog.New(cfg.out, "", 0),
	}

	return slog.New(h)
}

// prettyHandler печатает запись одной строкой: время, цветной уровень, сообщение и атрибуты в JSON
type prettyHandler struct {
	slog.Handler
	l     *stdlog.Logger
	attrs []slog.Attr
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = attrValue(a.Value)
		return true
	})

	var extra string
	if len(fields) > 0 {
		b, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return err
		}
		extra = color.WhiteString(string(b))
	}

	h.l.Println(r.Time.Format("[15:04:05.000]"), level, color.CyanString(r.Message), extra)

	return nil
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	return &prettyHandler{
		Handler: h.Handler.WithAttrs(attrs),
		l:       h.l,
		attrs:   merged,
	}
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	return &prettyHandler{
		Handler: h.Handler.WithGroup(name),
		l:       h.l,
		attrs:   h.attrs,
	}
}
