package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollcall/attendance/internal/lockfile"
	"github.com/rollcall/attendance/internal/notify"
	"github.com/rollcall/attendance/internal/watcher"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one watcher cycle now",
}

var syncFileCmd = &cobra.Command{
	Use:   "file",
	Short: "Import new or changed spreadsheet files from the watch directory",
	Long: `Run one file watcher cycle regardless of the enabled/autoImport settings.

Every spreadsheet is treated as new, since change signatures live only in a
running watcher. If "rollcall serve" is mid-cycle on the same data directory
this command waits for it to finish first.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx)
		defer a.Close()

		runner, _ := a.fileRunner()
		report, err := runner.Trigger(ctx)
		exitOnCycle(report, err)
	},
}

var syncRemoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Import Sabbath worksheets from the remote spreadsheet",
	Long: `Run one remote watcher cycle regardless of the enabled/autoImport settings.

With --date only the worksheet for that date is imported.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx)
		defer a.Close()

		rawDate, _ := cmd.Flags().GetString("date")
		if rawDate == "" {
			runner, _ := a.remoteRunner()
			report, err := runner.Trigger(ctx)
			exitOnCycle(report, err)
			return
		}

		date, err := parseDate(rawDate, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		_, src := a.remoteRunner()
		lock := lockfile.New(cycleLockPath(src.Name()))
		if err := lock.Lock(ctx); err != nil {
			exitOnCycle(watcher.CycleReport{}, err)
			return
		}
		defer func() { _ = lock.Unlock() }()

		report := watcher.CycleReport{Source: src.Name(), StartedAt: time.Now()}
		units, err := src.Fetch(ctx, date)
		if err != nil {
			report.Message = fmt.Sprintf("Failed to sync from remote: %v", err)
			exitOnCycle(report, nil)
			return
		}
		report = applyUnits(ctx, a, report, units, notify.TypeRemoteImport)
		exitOnCycle(report, nil)
	},
}

func init() {
	syncRemoteCmd.Flags().String("date", "", "Only import this date (YYYY-MM-DD, M/D or a phrase like \"last saturday\")")
	syncCmd.AddCommand(syncFileCmd, syncRemoteCmd)
	rootCmd.AddCommand(syncCmd)
}

// applyUnits reconciles units outside a runner and publishes the result.
func applyUnits(ctx context.Context, a *app, report watcher.CycleReport, units []watcher.Unit, kind notify.Type) watcher.CycleReport {
	applied, result, err := watcher.Apply(ctx, a.engine, units)
	report.Units = applied
	report.Result = result
	report.Duration = time.Since(report.StartedAt)
	if err != nil {
		report.Message = fmt.Sprintf("Failed to sync from %s: %v", report.Source, err)
	} else {
		report.Success = true
		report.Message = fmt.Sprintf("Successfully synced %d unit(s) from %s: %s", len(units), report.Source, result.String())
	}

	if result.Changed() {
		n := notify.Notification{
			Type:      kind,
			Source:    report.Source,
			Units:     applied,
			Result:    result,
			Timestamp: time.Now().UTC(),
		}
		if err := a.publisher.Publish(ctx, n); err != nil {
			logger.WithError(err).Warn("failed to publish update notification")
		}
	}
	return report
}

func exitOnCycle(report watcher.CycleReport, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printReport(report)
	if !report.Success {
		os.Exit(1)
	}
}
