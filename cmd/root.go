// Package cmd provides the weftsync command-line interface.
//
// Configuration precedence, highest first:
//  1. Command-line flags
//  2. WEFTSYNC_ prefixed environment variables (WEFTSYNC_LOG_LEVEL, ...)
//  3. .weftsync.yml in the current directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "weftsync",
	Short: "Incremental project synchronization for weft workspaces",
	Long: `weftsync keeps derived weft project state in sync with the workspace.

It watches weft documents, debounces bursts of edits, resolves component
metadata for the affected projects, and publishes the derived project info
wherever consumers read it (per-project files or a streamed connection).

Quick start:
  weftsync init                   Write a default .weftsync.yml
  weftsync sync                   Watch the workspace and synchronize
  weftsync sync --once            Synchronize once and exit`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept underscore spellings (--log_level) alongside dashes.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .weftsync.yml)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (trace, debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("WEFTSYNC_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".weftsync")
	}

	viper.SetEnvPrefix("WEFTSYNC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and environment carry.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
