package entity

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
)

var (
	saveID   string
	saveFile string
)

var saveCmd = &cobra.Command{
	Use:   "save <type> [json|-]",
	Short: "Создать или перезаписать сущность",
	Long: `Сохраняет сущность целиком. Без --id генерируется новый идентификатор.

Примеры:
  tiklay entity save student '{"name":"Ana"}'
  tiklay entity save student --id S1 --file ana.json
  cat ana.json | tiklay entity save student -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		data, err := cli.ReadPayload(cmd, argAt(args, 1), saveFile)
		if err != nil {
			return err
		}

		id, err := app.Store().SaveEntity(cmd.Context(), args[0], data, saveID)
		if err != nil {
			return fmt.Errorf("ошибка сохранения: %w", err)
		}

		e, err := app.Store().GetEntity(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}

		format, err := cli.Output(cmd)
		if err != nil {
			return err
		}
		return cli.Render(cmd.OutOrStdout(), format, e, func(w io.Writer) error {
			fmt.Fprintf(w, "Сохранено: %s/%s (версия %d, ожидает синхронизации)\n", e.Type, e.ID, e.Version)
			return nil
		})
	},
}

func init() {
	saveCmd.Flags().StringVar(&saveID, "id", "", "идентификатор сущности")
	saveCmd.Flags().StringVarP(&saveFile, "file", "f", "", "файл с JSON-данными")
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
