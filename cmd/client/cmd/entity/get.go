package entity

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
	"tiklay/internal/domain/offline"
)

var getCmd = &cobra.Command{
	Use:   "get <type> <id>",
	Short: "Показать сущность",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		e, err := app.Store().GetEntity(cmd.Context(), args[0], args[1])
		if errors.Is(err, offline.ErrNotFound) {
			return fmt.Errorf("сущность %s/%s не найдена", args[0], args[1])
		}
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
