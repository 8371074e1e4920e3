package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tiklay/cmd/client/cmd/cli"
	"tiklay/cmd/client/cmd/entity"
	syncCmd "tiklay/cmd/client/cmd/sync"
	"tiklay/internal/app/client"
	"tiklay/internal/app/client/config"
	"tiklay/internal/utils/logger"
)

var (
	cfgFile   string
	output    string
	serverURL string
	app       *client.App
)

var rootCmd = &cobra.Command{
	Use:   "tiklay",
	Short: "Tiklay - офлайн-клиент учета с синхронизацией",
	Long: `Tiklay хранит учеников, занятия, платежи и другие сущности в локальной
базе и работает без связи с сервером.

Все изменения ставятся в очередь и отправляются на сервер при синхронизации:
вручную (tiklay sync now) или в фоне (tiklay sync daemon).`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}

	// журнал уходит в stderr или файл, stdout остается для результатов
	opts := []logger.Option{logger.WithLevel(cfg.LogLevel), logger.WithOutput(cmd.ErrOrStderr())}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile))
	}
	log := logger.New(cfg.Env, opts...)

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(cli.WithApp(cmd.Context(), app))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML-файл конфигурации")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "формат вывода: text, json, yaml (по умолчанию text в терминале, иначе json)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера, переопределяет SERVER_ADDRESS")

	rootCmd.AddCommand(entity.EntityCmd, syncCmd.SyncCmd)
}
