package entity

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
	"tiklay/internal/domain/offline"
)

// EntityCmd родительская команда для локальных операций с сущностями.
// Все изменения сразу пишутся в локальную базу и уходят на сервер при синхронизации.
var EntityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Работа с локальными сущностями",
	Long: `Создание, изменение, удаление и поиск сущностей в локальной базе.

Команды работают без связи с сервером: каждое изменение ставится в очередь
и будет отправлено при следующей синхронизации.`,
}

func init() {
	EntityCmd.AddCommand(saveCmd, updateCmd, deleteCmd, getCmd, listCmd, searchCmd)
}

func printEntity(w io.Writer, e *offline.Entity) error {
	fmt.Fprintf(w, "ID:        %s\n", e.ID)
	fmt.Fprintf(w, "Тип:       %s\n", e.Type)
	if e.RemoteID != "" {
		fmt.Fprintf(w, "Server ID: %s\n", e.RemoteID)
	}
	fmt.Fprintf(w, "Статус:    %s\n", cli.Status(e.SyncStatus))
	fmt.Fprintf(w, "Версия:    %d\n", e.Version)
	fmt.Fprintf(w, "Изменено:  %s\n", e.LastModified.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "\n%s\n", cli.Pretty(e.Payload))
	return nil
}

func printEntities(w io.Writer, entities []offline.Entity) error {
	if len(entities) == 0 {
		fmt.Fprintln(w, "Записи не найдены")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERVER ID\tСТАТУС\tВЕРСИЯ\tИЗМЕНЕНО")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.RemoteID,
			cli.Status(e.SyncStatus),
			e.Version,
			e.LastModified.Local().Format("2006-01-02 15:04"),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nВсего: %d\n", len(entities))
	return nil
}
