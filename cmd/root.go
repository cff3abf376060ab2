package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/impel-dev/impel/internal/config"
	"github.com/impel-dev/impel/internal/log"
	"github.com/impel-dev/impel/internal/paths"
	"github.com/impel-dev/impel/internal/presentation"
)

var (
	version    = "dev"
	cfgFile    string
	dbFlag     string
	jsonOutput bool
	debugFlag  bool
	actorFlag  string
	cfg        config.Config
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "impel",
	Short: "A stigmergic coordination engine for agent swarms",
	Long: `impel coordinates autonomous agents through shared state instead of
direct messaging. Threads of work carry a decaying temperature; agents claim
the hottest available thread and leave traces that later agents follow.

All state is an append-only event log in a local SQLite database.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./.impel/config.yaml or ~/.config/impel/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "",
		"database file or project directory (default: ./.impel/impel.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"write JSON instead of text")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write a debug log (also enabled by IMPEL_DEBUG)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "as", "",
		"operator name recorded on human actions (default: $USER)")

	// Bind flags to viper
	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
}

// defaultConfigPath is where a missing config file is created.
func defaultConfigPath() string {
	return filepath.Join(paths.DataDirName, "config.yaml")
}

func initConfig() {
	viper.SetEnvPrefix("IMPEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .impel/config.yaml (current directory)
		// 2. ~/.config/impel/config.yaml (user config)
		if _, err := os.Stat(defaultConfigPath()); err == nil {
			viper.SetConfigFile(defaultConfigPath())
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "impel"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .impel/config.yaml
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(defaultConfigPath()); writeErr == nil {
				viper.SetConfigFile(defaultConfigPath())
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = config.Defaults()
	_ = viper.Unmarshal(&cfg)
}

// setup validates configuration and starts the debug log before any
// subcommand runs.
func setup(cmd *cobra.Command, _ []string) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if debugFlag || os.Getenv("IMPEL_DEBUG") != "" {
		path := cfg.Log.File
		if path == "" {
			path = "debug.log"
		}
		cleanup, err := log.Init(path)
		if err != nil {
			return fmt.Errorf("opening debug log: %w", err)
		}
		log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
		logCleanup = cleanup
		log.Debug(log.CatConfig, "configuration loaded", "file", viper.ConfigFileUsed(), "command", cmd.CommandPath())
	}
	return nil
}

// operator names the human behind CLI actions.
func operator() string {
	if actorFlag != "" {
		return actorFlag
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "human"
}

// formatter writes to the command's output stream.
func formatter(cmd *cobra.Command) *presentation.Formatter {
	return presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput)
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, rendering any error in
// the selected output mode.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		_ = presentation.NewFormatter(rootCmd.ErrOrStderr(), jsonOutput).Error(err)
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
