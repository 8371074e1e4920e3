package entity

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
)

var updateFile string

var updateCmd = &cobra.Command{
	Use:   "update <type> <id> [json|-]",
	Short: "Изменить поля сущности",
	Long: `Переданные поля заменяют одноименные поля сущности, остальные сохраняются.

Пример:
  tiklay entity update student S1 '{"grade":2}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		partial, err := cli.ReadPayload(cmd, argAt(args, 2), updateFile)
		if err != nil {
			return err
		}

		if err := app.Store().UpdateEntity(cmd.Context(), args[0], args[1], partial); err != nil {
			return fmt.Errorf("ошибка обновления: %w", err)
		}

		e, err := app.Store().GetEntity(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		format, err := cli.Output(cmd)
		if err != nil {
			return err
		}
		return cli.Render(cmd.OutOrStdout(), format, e, func(w io.Writer) error {
			return printEntity(w, e)
		})
	},
}

func init() {
	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "", "файл с JSON-данными")
}
