package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Control the marketplace polling fallback",
}

var pollTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Kick off one out-of-band poll cycle",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewSyncClient(viper.GetString("url"))

		if err := client.TriggerPoll(); err != nil {
			cmd.Printf("Error triggering poll: %s\n", err)
			os.Exit(1)
		}

		cmd.Println("Poll cycle triggered.")
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.AddCommand(pollTriggerCmd)
}
