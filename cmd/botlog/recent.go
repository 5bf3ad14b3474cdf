package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"botlog/internal/app"
	"botlog/internal/chanlog"
	"botlog/internal/config"
	"botlog/internal/storage"
	logx "botlog/pkg/logx"
)

var (
	recentChannel string
	recentNick    string
	recentLimit   int
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Print the most recent channel records from the database",
	RunE:  runRecent,
}

func init() {
	recentCmd.Flags().StringVar(&recentChannel, "channel", "", "filter by channel")
	recentCmd.Flags().StringVar(&recentNick, "nick", "", "filter by nick")
	recentCmd.Flags().IntVar(&recentLimit, "limit", storage.DefaultQueryLimit, "maximum number of records")
	rootCmd.AddCommand(recentCmd)
}

func runRecent(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return err
	}
	sc, ok, err := app.MapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(storage.ErrDisabled, "no storage configured")
	}
	st, err := storage.Open(cmd.Context(), sc, logx.NewConsole("botlog.storage", cfg.Logging.Level))
	if err != nil {
		return err
	}
	defer st.Close()

	docs, err := st.Recent(cmd.Context(), storage.Query{Channel: recentChannel, Nick: recentNick, Limit: recentLimit})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i := len(docs) - 1; i >= 0; i-- {
		d := docs[i]
		r := chanlog.Record{Channel: d.Channel, Created: storage.FromEpochSeconds(d.Created), Nick: d.Nick, Message: d.Message}
		fmt.Fprintf(out, "%s %s", d.Channel, chanlog.DefaultFormatter(r))
	}
	return nil
}
