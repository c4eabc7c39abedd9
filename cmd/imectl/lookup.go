package main

import (
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"imecore/internal/config"
	"imecore/internal/dict"
	"imecore/internal/userdict"
)

func (a *app) newLookupCmd() *cobra.Command {
	var complete int
	cmd := &cobra.Command{
		Use:   "lookup <code>",
		Short: "List the phrases of a code in every table and the user dictionary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			code := args[0]

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tCODE\tTEXT\tWEIGHT\tCOMMENT")
			for _, path := range cfg.Dictionary.Tables {
				table, err := dict.LoadTable(path)
				if errors.Is(err, fs.ErrNotExist) {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: table not found: %s\n", path)
					continue
				}
				if err != nil {
					return err
				}
				phrases := table.Lookup(code)
				if complete > 0 {
					phrases = append(phrases, table.Complete(code, complete)...)
				}
				for _, p := range phrases {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\n", table.Name, p.Code, p.Text, p.Weight, p.Comment)
				}
			}

			if cfg.UserDict.Enabled {
				store, err := openUserDict(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				entries, err := store.Lookup(cmd.Context(), code)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(tw, "user\t%s\t%s\t%g\t%d commits\n", e.Code, e.Text, e.Weight, e.Commits)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&complete, "complete", 0, "also list up to `n` completions of the code")
	return cmd
}

func openUserDict(cfg *config.Config) (*userdict.Store, error) {
	return userdict.Open(cfg.UserDict.Path,
		userdict.WithCacheTTL(time.Duration(cfg.UserDict.CacheTTLSec)*time.Second))
}
