package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"imecore/internal/ime"
	"imecore/internal/metrics"
	"imecore/internal/session"
)

func (a *app) newTypeCmd() *cobra.Command {
	var (
		noUserDict bool
		stats      bool
	)
	cmd := &cobra.Command{
		Use:   "type <keys>...",
		Short: "Feed key sequences to an engine and print what it shows",
		Long: `Each argument is a key sequence fed to one engine in order. Named keys
are written in braces, optionally with modifiers:

  imectl type nihao '{Down}' '{space}'
  imectl type 'ni{BackSpace}{Escape}' '{Shift+Delete}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if noUserDict {
				cfg.UserDict.Enabled = false
			}
			logger, err := a.logger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			out := cmd.OutOrStdout()
			var m *metrics.EngineMetrics
			if stats {
				m = metrics.NewEngineMetrics(nil)
			}
			e, err := ime.NewFromConfig(cfg, logger.WithComponent("engine").Logger,
				ime.WithMetrics(m),
				ime.WithCommitSink(func(text string) {
					fmt.Fprintf(out, "commit: %s\n", text)
				}))
			if err != nil {
				return err
			}
			defer e.Close()

			for _, seq := range args {
				keys, err := ime.ParseKeys(seq)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "> %s\n", seq)
				for _, k := range keys {
					if !e.ProcessKey(k) && k.Char != 0 {
						fmt.Fprintf(out, "passed: %c\n", k.Char)
					}
				}
				printState(out, e.State())
			}
			if m != nil {
				return m.Registry().WritePrometheus(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "print engine metrics after the last sequence")
	cmd.Flags().BoolVar(&noUserDict, "no-userdict", false, "neither read nor update the user dictionary")
	return cmd
}

func printState(w io.Writer, st ime.State) {
	if !st.Composing {
		return
	}
	p := st.Preedit
	fmt.Fprintf(w, "preedit: %s%s%s\n", p.Text[:p.CaretPos], session.CaretSymbol, p.Text[p.CaretPos:])
	if len(st.Options) > 0 {
		fmt.Fprintf(w, "options: %s\n", strings.Join(st.Options, " "))
	}
	if st.Page == nil {
		return
	}
	for i, c := range st.Page.Candidates {
		mark := " "
		if i == st.Highlighted {
			mark = "*"
		}
		line := fmt.Sprintf("%s%d. %s", mark, (i+1)%10, c.Text())
		if comment := c.Comment(); comment != "" {
			line += " " + comment
		}
		fmt.Fprintln(w, line)
	}
	if !st.Page.IsLastPage {
		fmt.Fprintf(w, "  (page %d, more)\n", st.Page.Number+1)
	}
}
