package sync

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
	"tiklay/internal/domain/offline"
	engine "tiklay/internal/domain/sync"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Неразрешенные конфликты",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		conflicts, err := app.Sync().Conflicts(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка получения конфликтов: %w", err)
		}
		if conflicts == nil {
			conflicts = []offline.Conflict{}
		}

		format, err := cli.Output(cmd)
		if err != nil {
			return err
		}
		return cli.Render(cmd.OutOrStdout(), format, conflicts, func(w io.Writer) error {
			return printConflicts(w, conflicts)
		})
	},
}

var resolveFile string

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id> <local|remote|merged> [json|-]",
	Short: "Разрешить конфликт вручную",
	Long: `Применяет выбранную версию к записи и закрывает конфликт.

  local   оставить локальную версию, она будет отправлена на сервер
  remote  принять серверную версию
  merged  сохранить переданные данные и отправить их на сервер

Пример:
  tiklay sync resolve 5f0c... merged '{"name":"Ana","grade":2}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		resolution := offline.Resolution(strings.ToLower(args[1]))
		if resolution == "merge" {
			resolution = offline.ResolutionMerged
		}

		var merged []byte
		if resolution == offline.ResolutionMerged {
			arg := ""
			if len(args) == 3 {
				arg = args[2]
			}
			merged, err = cli.ReadPayload(cmd, arg, resolveFile)
			if err != nil {
				return err
			}
		}

		err = app.Sync().ResolveConflictManually(cmd.Context(), args[0], resolution, merged)
		switch {
		case errors.Is(err, offline.ErrNotFound):
			return fmt.Errorf("конфликт %s не найден", args[0])
		case errors.Is(err, engine.ErrInvalidArgument):
			return fmt.Errorf("некорректный запрос: %w", err)
		case err != nil:
			return fmt.Errorf("ошибка разрешения конфликта: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Конфликт %s разрешен (%s)\n", args[0], resolution)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveFile, "file", "f", "", "файл с объединенными данными")
}

func printConflicts(w io.Writer, conflicts []offline.Conflict) error {
	if len(conflicts) == 0 {
		fmt.Fprintln(w, "Конфликтов нет")
		return nil
	}

	for i, c := range conflicts {
		fmt.Fprintf(w, "%d. %s/%s  (конфликт %s)\n", i+1, c.EntityType, c.EntityID, c.ID)
		fmt.Fprintf(w, "   локально изменено: %s\n", c.LocalModified.Local().Format("2006-01-02 15:04:05"))
		if !c.RemoteModified.IsZero() {
			fmt.Fprintf(w, "   на сервере:        %s\n", c.RemoteModified.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(w, "   локальная версия:  %s\n", c.LocalPayload)
		fmt.Fprintf(w, "   серверная версия:  %s\n\n", c.RemotePayload)
	}
	return nil
}
