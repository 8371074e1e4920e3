package sync

import (
	"github.com/spf13/cobra"
)

// SyncCmd родительская команда для синхронизации с сервером
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Синхронизация с сервером",
	Long: `Синхронизация локальной базы с сервером учета.

Прогон состоит из выгрузки очереди изменений, загрузки серверных коллекций
и разрешения конфликтов. Одновременно выполняется не более одного прогона.`,
}

func init() {
	SyncCmd.AddCommand(nowCmd, statusCmd, conflictsCmd, resolveCmd, cleanupCmd, daemonCmd)
}
