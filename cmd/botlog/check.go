package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"botlog/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Parse()
		if err != nil {
			return err
		}
		db := "file"
		if cfg.ChannelLogging.DB {
			db = "db"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: level=%s channel_logging=%s\n", cfg.Logging.Level, db)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
