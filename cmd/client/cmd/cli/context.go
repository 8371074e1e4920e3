// Package cli общие части команд клиента: доступ к приложению и вывод результатов.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tiklay/internal/app/client"
	"tiklay/internal/domain/payload"
)

type appKey struct{}

// WithApp кладет приложение в контекст команды
func WithApp(ctx context.Context, app *client.App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

// App достает приложение, подготовленное корневой командой
func App(cmd *cobra.Command) (*client.App, error) {
	app, ok := cmd.Context().Value(appKey{}).(*client.App)
	if !ok || app == nil {
		return nil, errors.New("приложение не инициализировано")
	}
	return app, nil
}

// ReadPayload берет JSON-объект из аргумента, файла или stdin ("-")
func ReadPayload(cmd *cobra.Command, arg, file string) (json.RawMessage, error) {
	var raw []byte

	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения файла: %w", err)
		}
		raw = data
	case arg == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения stdin: %w", err)
		}
		raw = data
	case arg != "":
		raw = []byte(arg)
	default:
		return nil, errors.New("данные не указаны: передайте JSON аргументом, через --file или '-' для stdin")
	}

	if _, err := payload.Object(raw); err != nil {
		return nil, fmt.Errorf("данные должны быть JSON-объектом: %w", err)
	}
	return raw, nil
}
