package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imecore/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, check and print the configuration file",
	}
	cmd.AddCommand(a.newConfigInitCmd(), a.newConfigValidateCmd(), a.newConfigShowCmd())
	return cmd
}

func (a *app) newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.path()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file against the schema and the rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.path()
			if err := config.ValidateFile(path); err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			var verrs config.ValidationErrors
			if err := cfg.Validate(); err != nil && !errors.As(err, &verrs) {
				return err
			}
			for _, w := range verrs.Warnings() {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w.Error())
			}
			for _, e := range verrs.Errors() {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", e.Error())
			}
			if verrs.HasErrors() {
				return config.ErrInvalidConfig
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
			return nil
		},
	}
}

func (a *app) newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.path())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
}
