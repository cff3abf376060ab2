package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/impel-dev/impel/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if jsonOutput {
			return formatter(cmd).JSON(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file, keeping its comments",
	Long: `Set a dotted key in the config file in use.

Examples:
  impel config set temperature.half_life 12h
  impel config set ranking.tie_break newest
  impel config set flags.verify-on-open true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.ConfigFileUsed()
		if path == "" {
			path = defaultConfigPath()
		}

		// Validate the result before touching the file.
		v := viper.New()
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
		v.Set(args[0], args[1])
		candidate := config.Defaults()
		if err := v.Unmarshal(&candidate); err != nil {
			return fmt.Errorf("invalid value for %s: %w", args[0], err)
		}
		if err := config.Validate(candidate); err != nil {
			return err
		}

		if err := config.SaveValue(path, args[0], args[1]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", args[0], args[1], path)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
