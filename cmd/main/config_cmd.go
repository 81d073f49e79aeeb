package main

import (
	"fmt"
	"os"

	"nepse-observer/src/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect or create the config file"}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s exists, pass --force to overwrite", opts.configPath)
			}
			conf, err := config.Parse([]byte("{}"))
			if err != nil {
				return err
			}
			if err := conf.Save(opts.configPath); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", opts.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config after defaults and environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewConfig(opts.configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(conf.MConfig)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
