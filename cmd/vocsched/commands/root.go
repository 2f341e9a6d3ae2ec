package commands

import (
	"github.com/spf13/cobra"

	"vocsched/internal/config"
	appLog "vocsched/internal/log"
)

const version = "0.3.0"

var (
	configPath string
	envFile    string
	logLevel   string

	cfg *config.Config
)

func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "vocsched",
		Short:         "Build conference schedules and export them as JSON, pentabarf XML and iCalendar",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			c, err := config.Load(configPath)
			if err != nil {
				appLog.Error("failed to load config", err, "config_path", configPath)
				return err
			}
			if logLevel != "" {
				c.LogLevel = logLevel
			}
			appLog.SetLevel(appLog.ParseLevel(c.LogLevel))
			cfg = c
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "vocsched.yaml", "config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with VOCSCHED_* overrides")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(convertCmd(), templateCmd(), serveCmd())
	return root
}
