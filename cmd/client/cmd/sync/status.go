package sync

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
	engine "tiklay/internal/domain/sync"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Состояние синхронизации",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		// результат проверки отражается в поле is_online
		_ = app.CheckConnection(cmd.Context())

		st, err := app.Sync().GetStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка получения статуса: %w", err)
		}

		format, err := cli.Output(cmd)
		if err != nil {
			return err
		}
		return cli.Render(cmd.OutOrStdout(), format, st, func(w io.Writer) error {
			return printStatus(w, st)
		})
	},
}

func printStatus(w io.Writer, st engine.Status) error {
	online := color.GreenString("в сети")
	if !st.IsOnline {
		online = color.RedString("нет связи")
	}

	last := "никогда"
	if !st.LastSyncTime.IsZero() {
		last = st.LastSyncTime.Local().Format("2006-01-02 15:04:05")
	}

	fmt.Fprintf(w, "Сервер:                 %s\n", online)
	fmt.Fprintf(w, "Последняя синхронизация: %s\n", last)
	fmt.Fprintf(w, "Ожидают отправки:       %d записей (%d операций)\n", st.PendingUploadCount, st.PendingIntentCount)

	conflicts := fmt.Sprint(st.ConflictCount)
	if st.ConflictCount > 0 {
		conflicts = color.YellowString(conflicts)
	}
	fmt.Fprintf(w, "Конфликтов:             %s\n", conflicts)
	if st.LastError != "" {
		fmt.Fprintf(w, "Последняя ошибка:       %s\n", color.RedString(st.LastError))
	}
	return nil
}
