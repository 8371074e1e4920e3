package entity

import (
	"fmt"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <type> <id>",
	Short: "Удалить сущность",
	Long:  `Удаляет запись локально и ставит удаление на сервере в очередь.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		if err := app.Store().DeleteEntity(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("ошибка удаления: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Удалено: %s/%s\n", args[0], args[1])
		return nil
	},
}
