package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollcall/attendance/internal/notify"
	"github.com/rollcall/attendance/internal/watcher"
)

var importCmd = &cobra.Command{
	Use:     "import <file.xlsx>",
	GroupID: "sync",
	Short:   "Import attendance from one spreadsheet file",
	Long: `Import attendance rows from a spreadsheet.

The date is taken from --date when given. Otherwise every "Sabbath <date>"
sheet is imported for its own date; a workbook without such sheets uses the
date in its file name, or the Sabbath Date column of each row.

Examples:
  rollcall import roster.xlsx --date 2025-01-04
  rollcall import "Sabbath 1-4-25.xlsx"
  rollcall import export.xlsx --date "last saturday"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		now := time.Now()

		rawDate, _ := cmd.Flags().GetString("date")
		date, err := parseDate(rawDate, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if _, err := os.Stat(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		a := mustOpenApp(ctx)
		defer a.Close()

		units := watcher.ReadWorkbook(args[0], date, now)
		report := watcher.CycleReport{Source: filepath.Base(args[0]), StartedAt: now}
		report = applyUnits(ctx, a, report, units, notify.TypeFileImport)
		exitOnCycle(report, nil)
	},
}

func init() {
	importCmd.Flags().String("date", "", "Attendance date for every row (YYYY-MM-DD, M/D or a phrase)")
	rootCmd.AddCommand(importCmd)
}
