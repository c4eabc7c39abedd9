// imectl is the command-line companion of imecore. It drives an engine
// from the terminal, queries code tables and maintains the user
// dictionary and configuration file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imecore/internal/config"
	"imecore/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the flags shared by every command.
type app struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "imectl",
		Short:         "Drive and maintain the imecore input method",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log engine activity to stderr")

	root.AddCommand(
		a.newTypeCmd(),
		a.newLookupCmd(),
		a.newUserDictCmd(),
		a.newConfigCmd(),
		a.newLogsCmd(),
	)
	return root
}

func (a *app) path() string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.ConfigPath()
}

// loadConfig reads and validates the configuration. Warnings are
// printed but do not fail.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader(a.path()).Load()
	if err != nil {
		return nil, err
	}
	if verrs, ok := cfg.Validate().(config.ValidationErrors); ok {
		for _, w := range verrs.Warnings() {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w.Error())
		}
	}
	return cfg, nil
}

// logger writes to the command's stderr. Only warnings are shown unless
// --verbose is set.
func (a *app) logger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Writer = cmd.ErrOrStderr()
	logCfg.Component = "imectl"
	if a.verbose {
		logCfg.Level = logging.LevelDebug
	} else {
		logCfg.Level = logging.LevelWarn
	}
	return logging.New(logCfg)
}
