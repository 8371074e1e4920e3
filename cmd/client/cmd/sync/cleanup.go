package sync

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Удалить старые выполненные операции и закрытые конфликты",
	Long: `Удаляет из локальной базы записи старше срока хранения (RETENTION_DAYS)
и операции, исчерпавшие лимит повторов (MAX_RETRIES).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		stats, err := app.Sync().Cleanup(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка очистки: %w", err)
		}

		format, err := cli.Output(cmd)
		if err != nil {
			return err
		}
		return cli.Render(cmd.OutOrStdout(), format, stats, func(w io.Writer) error {
			fmt.Fprintf(w, "Удалено операций: %d, брошенных операций: %d, конфликтов: %d\n",
				stats.Intents, stats.Abandoned, stats.Conflicts)
			return nil
		})
	},
}
