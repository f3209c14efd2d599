package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "syncctl is a command line tool for operating the inventory synchronizer",
	Long: `syncctl is the operator CLI for the unified inventory synchronizer.

The service ingests marketplace inventory updates over a webhook and a
polling fallback, normalizes them into a canonical record, and commits
them through a durable queue with per-product locking and retry.

Common workflows:

  Inspect queue depth:
    syncctl queue stats

  List jobs that exhausted their retry budget:
    syncctl queue dlq

  Kick off an out-of-band poll cycle:
    syncctl poll trigger

Configuration:
  Set the API endpoint via an environment variable or a config file:
    SYNCCTL_URL    service base URL (default: http://localhost:3000)

For more information, visit: https://github.com/faranjit/jobplane`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".syncctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".syncctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "SYNCCTL_VARNAME"
	viper.SetEnvPrefix("SYNCCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.syncctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:3000", "Synchronizer service URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
