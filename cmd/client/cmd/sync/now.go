package sync

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
	engine "tiklay/internal/domain/sync"
)

const maxShownErrors = 5

var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Синхронизировать сейчас",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		res, err := app.SyncNow(cmd.Context())
		switch {
		case errors.Is(err, engine.ErrAlreadyInProgress):
			return errors.New("синхронизация уже выполняется, повторите позже")
		case errors.Is(err, engine.ErrOffline):
			return errors.New("сервер недоступен, изменения останутся в очереди")
		case err != nil:
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}

		format, err := cli.Output(cmd)
		if err != nil {
			return err
		}
		if err := cli.Render(cmd.OutOrStdout(), format, res, func(w io.Writer) error {
			return printResult(w, res)
		}); err != nil {
			return err
		}

		if !res.Success {
			return errors.New("не все изменения отправлены на сервер")
		}
		return nil
	},
}

func printResult(w io.Writer, res *engine.Result) error {
	if res.Success {
		fmt.Fprintln(w, color.GreenString("Синхронизация завершена"))
	} else {
		fmt.Fprintln(w, color.RedString("Синхронизация завершена с ошибками"))
	}

	fmt.Fprintf(w, "Время выполнения:       %v\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Отправлено на сервер:   %d\n", res.Uploaded)
	fmt.Fprintf(w, "Получено с сервера:     %d\n", res.Downloaded)
	fmt.Fprintf(w, "Конфликтов обнаружено:  %d\n", res.ConflictsDetected)
	fmt.Fprintf(w, "Конфликтов разрешено:   %d\n", res.ConflictsResolved)

	if res.ConflictsDetected > res.ConflictsResolved {
		fmt.Fprintln(w, color.YellowString("Есть неразрешенные конфликты: tiklay sync conflicts"))
	}

	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "Ошибок: %d\n", len(res.Errors))
		for i, e := range res.Errors {
			if i == maxShownErrors {
				fmt.Fprintf(w, "  ... и еще %d\n", len(res.Errors)-maxShownErrors)
				break
			}
			fmt.Fprintf(w, "  • [%s] %s %s/%s: %s\n", e.Phase, e.Operation, e.EntityType, e.EntityID, e.Error)
		}
	}
	return nil
}
