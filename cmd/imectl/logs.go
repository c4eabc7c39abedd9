package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imecore/internal/logging"
)

func (a *app) newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "List the log file and its rotated backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			logCfg, err := logging.FromSettings(cfg.Logging)
			if err != nil {
				return err
			}
			files, err := logging.LogFiles(logCfg)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no log files at %s\n", logCfg.FilePath)
				return nil
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}
