package entity

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
	"tiklay/internal/domain/offline"
)

var (
	pendingOnly  bool
	searchFields []string
)

var listCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "Список сущностей типа",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		entities, err := app.Store().ListEntities(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("ошибка получения списка: %w", err)
		}
		if pendingOnly {
			entities = filterPending(entities)
		}

		return renderList(cmd, entities)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <type> <query>",
	Short: "Поиск по строковым полям",
	Long: `Ищет подстроку без учета регистра. По умолчанию просматриваются все
строковые поля верхнего уровня, --field ограничивает поиск.

Пример:
  tiklay entity search student ana --field name`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		entities, err := app.Store().SearchEntities(cmd.Context(), args[0], args[1], searchFields...)
		if err != nil {
			return fmt.Errorf("ошибка поиска: %w", err)
		}

		return renderList(cmd, entities)
	},
}

func init() {
	listCmd.Flags().BoolVar(&pendingOnly, "pending", false, "только несинхронизированные")
	searchCmd.Flags().StringSliceVar(&searchFields, "field", nil, "поля для поиска")
}

func renderList(cmd *cobra.Command, entities []offline.Entity) error {
	format, err := cli.Output(cmd)
	if err != nil {
		return err
	}
	if entities == nil {
		entities = []offline.Entity{}
	}
	return cli.Render(cmd.OutOrStdout(), format, entities, func(w io.Writer) error {
		return printEntities(w, entities)
	})
}

func filterPending(entities []offline.Entity) []offline.Entity {
	out := entities[:0]
	for _, e := range entities {
		if e.SyncStatus != offline.StatusSynced {
			out = append(out, e)
		}
	}
	return out
}
