package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"imecore/internal/userdict"
)

func (a *app) newUserDictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "userdict",
		Short: "Inspect and edit the user dictionary",
	}
	cmd.AddCommand(
		a.newUserDictListCmd(),
		a.newUserDictLearnCmd(),
		a.newUserDictDeleteCmd(),
		a.newUserDictPurgeCmd(),
	)
	return cmd
}

// withStore opens the configured user dictionary for fn.
func (a *app) withStore(cmd *cobra.Command, fn func(*userdict.Store) error) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openUserDict(cfg)
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}

func (a *app) newUserDictListCmd() *cobra.Command {
	var withDeleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned phrases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(store *userdict.Store) error {
				entries, err := store.List(cmd.Context(), withDeleted)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tTEXT\tWEIGHT\tCOMMITS\tUPDATED")
				for _, e := range entries {
					text := e.Text
					if e.Deleted {
						text += " (deleted)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%s\n",
						e.Code, text, e.Weight, e.Commits, e.UpdatedAt.Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&withDeleted, "deleted", false, "include deleted phrases")
	return cmd
}

func (a *app) newUserDictLearnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "learn <code> <text>",
		Short: "Record a phrase as if it had been committed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(store *userdict.Store) error {
				return store.Commit(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func (a *app) newUserDictDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code> <text>",
		Short: "Stop offering a phrase for a code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(store *userdict.Store) error {
				live, err := store.Delete(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if live {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", args[0], args[1])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "blocked %s %s\n", args[0], args[1])
				}
				return nil
			})
		},
	}
}

func (a *app) newUserDictPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Forget deleted phrases so they may be offered again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(store *userdict.Store) error {
				n, err := store.Purge(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only purge deletions older than this")
	return cmd
}
