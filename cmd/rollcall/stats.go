package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "data",
	Short:   "Show attendance counts by status",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		rawDate, _ := cmd.Flags().GetString("date")
		date, err := parseDate(rawDate, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		a := mustOpenApp(ctx)
		defer a.Close()

		stats, err := a.coord.Stats(ctx, date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(stats)
			return
		}

		scope := "all dates"
		if stats.Date != "" {
			scope = stats.Date
		}
		fmt.Printf("Attendance for %s\n", successStyle.Render(scope))
		fmt.Printf("  %-8s %d\n", "total", stats.Total)
		fmt.Printf("  %-8s %d (%d%%)\n", "present", stats.Present, stats.Percent(stats.Present))
		fmt.Printf("  %-8s %d (%d%%)\n", "absent", stats.Absent, stats.Percent(stats.Absent))
		fmt.Printf("  %-8s %d (%d%%)\n", "other", stats.Other, stats.Percent(stats.Other))
	},
}

func init() {
	statsCmd.Flags().String("date", "", "Only count this date")
	rootCmd.AddCommand(statsCmd)
}
