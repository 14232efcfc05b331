package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollcall/attendance/internal/storage"
)

var mirrorCmd = &cobra.Command{
	Use:     "mirror",
	GroupID: "maint",
	Short:   "Repair the SQLite mirror from the flat store, or the reverse",
}

var mirrorBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Copy flat-store records missing from the mirror into it",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx)
		defer a.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		result, err := a.coord.BackfillMirror(ctx, storage.BackfillOptions{DryRun: dryRun})
		exitOnErr(err)

		if jsonOutput {
			outputJSON(result)
			return
		}
		verb := "Copied"
		if dryRun {
			verb = "Would copy"
		}
		fmt.Printf("%s %d members, %d attendance records, %d visitors\n",
			verb, result.MembersCopied, result.AttendanceCopied, result.VisitorsCopied)
		for _, e := range result.Errors {
			fmt.Printf("  %s %s\n", failStyle.Render("error:"), e)
		}
		if len(result.Errors) > 0 {
			a.Close()
			os.Exit(1)
		}
	},
}

var mirrorExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Rewrite flat-store attendance from the mirror",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx)
		defer a.Close()

		noBackup, _ := cmd.Flags().GetBool("no-backup")
		result, err := a.coord.ExportMirror(ctx, storage.ExportOptions{Backup: !noBackup})
		exitOnErr(err)

		if jsonOutput {
			outputJSON(result)
			return
		}
		fmt.Printf("Exported %d attendance records\n", result.Records)
		if result.BackupCreated != "" {
			fmt.Printf("Backup: %s\n", result.BackupCreated)
		}
	},
}

func init() {
	mirrorBackfillCmd.Flags().Bool("dry-run", false, "Count records without copying")
	mirrorExportCmd.Flags().Bool("no-backup", false, "Do not back up the current attendance file")
	mirrorCmd.AddCommand(mirrorBackfillCmd, mirrorExportCmd)
	rootCmd.AddCommand(mirrorCmd)
}
