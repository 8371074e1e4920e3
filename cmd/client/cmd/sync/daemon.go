package sync

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Фоновая синхронизация",
	Long: `Синхронизирует по таймеру (SYNC_INTERVAL_SECONDS) и сразу после
восстановления связи с сервером. Останавливается по SIGINT или SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.App(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()

		return app.Run(ctx)
	},
}
