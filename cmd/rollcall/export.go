package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollcall/attendance/internal/export"
	"github.com/rollcall/attendance/internal/watcher"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Export attendance to the remote spreadsheet or an xlsx workbook",
}

var exportSheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Push Sabbath worksheets to the remote spreadsheet",
	Long: `Write one "Sabbath <date>" worksheet per attendance date, plus a summary
worksheet, to the configured remote spreadsheet. Missing worksheets are
created and existing ones are overwritten.

Each dated worksheet lists every member (inactive included) with their status
or "Not Recorded", the visitors of that date and a TOTALS row. The layout is
the one "rollcall sync remote" reads, so a pushed sheet imports back as a
no-op. The service account needs edit access to the spreadsheet.

Examples:
  rollcall export sheets
  rollcall export sheets --date 2025-01-04`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		date := mustExportDate(cmd)

		a := mustOpenApp(ctx)
		defer a.Close()

		snap, err := export.Load(ctx, a.coord, date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		worksheets := snap.Worksheets(date)

		src := watcher.NewSheetsSource(a.configs, nil, logger)
		pushed, err := src.Push(ctx, worksheets)
		if jsonOutput {
			out := map[string]any{"sheets": pushed}
			if err != nil {
				out["error"] = err.Error()
			}
			outputJSON(out)
		} else {
			for _, title := range pushed {
				fmt.Printf("%s pushed %s\n", successStyle.Render("✓"), title)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx",
	Short: "Write attendance to an xlsx workbook",
	Long: `Write an attendance workbook named attendance_<date>.xlsx, or
attendance_all_<today>.xlsx without --date.

The detailed format has one row per record with timestamps; the summary
format has one row per record with the member's details. A Statistics sheet
is always added and --members adds the roster.

Examples:
  rollcall export xlsx
  rollcall export xlsx --date 2025-01-04 --format summary --members
  rollcall export xlsx --out ~/Desktop`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		date := mustExportDate(cmd)

		rawFormat, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(rawFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		withMembers, _ := cmd.Flags().GetBool("members")
		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = filepath.Join(appConfig.DataDir, "exports")
		}

		a := mustOpenApp(ctx)
		defer a.Close()

		snap, err := export.Load(ctx, a.coord, date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		path, err := snap.WriteWorkbook(outDir, export.WorkbookOptions{
			Date:           date,
			Format:         format,
			IncludeMembers: withMembers,
			Now:            time.Now(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger.WithField("path", path).Info("workbook exported")

		if jsonOutput {
			outputJSON(map[string]any{"path": path, "records": len(snap.Attendance)})
			return
		}
		fmt.Printf("%s wrote %d records to %s\n", successStyle.Render("✓"), len(snap.Attendance), path)
	},
}

// mustExportDate parses --date, where empty means every date.
func mustExportDate(cmd *cobra.Command) string {
	rawDate, _ := cmd.Flags().GetString("date")
	date, err := parseDate(rawDate, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return date
}

func init() {
	exportSheetsCmd.Flags().String("date", "", "Only push this date")
	exportXLSXCmd.Flags().String("date", "", "Only export this date")
	exportXLSXCmd.Flags().String("format", string(export.FormatDetailed), "Attendance sheet layout (detailed or summary)")
	exportXLSXCmd.Flags().Bool("members", false, "Add a Members sheet")
	exportXLSXCmd.Flags().String("out", "", "Output directory (default <data dir>/exports)")
	exportCmd.AddCommand(exportSheetsCmd, exportXLSXCmd)
	rootCmd.AddCommand(exportCmd)
}
