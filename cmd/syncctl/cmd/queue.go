package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the durable job queue",
	Long:  `Report queue depth and list jobs that exhausted their retry budget.`,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth across waiting, active, delayed and dead-letter sets",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewSyncClient(viper.GetString("url"))

		stats, err := client.GetQueueStats()
		if err != nil {
			cmd.Printf("Error fetching queue stats: %s\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WAITING\tACTIVE\tDELAYED\tCOMPLETED\tFAILED\tTOTAL")
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\n",
			stats.Waiting, stats.Active, stats.Delayed, stats.Completed, stats.Failed, stats.Total)
		w.Flush()
	},
}

var queueDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List jobs in the dead-letter queue",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewSyncClient(viper.GetString("url"))

		jobs, err := client.ListDLQ()
		if err != nil {
			cmd.Printf("Error fetching DLQ: %s\n", err)
			os.Exit(1)
		}

		if len(jobs) == 0 {
			cmd.Println("No jobs in the dead-letter queue.")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tATTEMPTS\tCREATED AT\tLAST ERROR")
		for _, j := range jobs {
			errMsg := j.LastError
			if len(errMsg) > 60 {
				errMsg = errMsg[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\n",
				j.ID, j.Attempts, j.MaxAttempts, j.CreatedAt.Format(time.RFC3339), errMsg)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueDLQCmd)
}
