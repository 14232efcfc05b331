package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollcall/attendance/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:     "audit",
	GroupID: "maint",
	Short:   "Compare flat-store attendance with the SQLite mirror",
	Long: `Compare every attendance record in the canonical flat store with the
relational mirror and list records missing on either side or differing in
status or notes. Neither store is modified.

Exits with status 2 when discrepancies are found.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx)
		defer a.Close()

		db := a.coord.Mirror()
		if db == nil {
			fmt.Fprintf(os.Stderr, "Error: mirror unavailable, nothing to compare\n")
			os.Exit(1)
		}

		report, err := audit.Run(ctx, a.coord.Flat(), db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		asYAML, _ := cmd.Flags().GetBool("yaml")
		switch {
		case jsonOutput:
			outputJSON(report)
		case asYAML:
			err = audit.WriteYAML(os.Stdout, report)
		default:
			err = audit.WriteText(os.Stdout, report, auditStyles())
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !report.Consistent {
			a.Close()
			os.Exit(2)
		}
	},
}

func init() {
	auditCmd.Flags().Bool("yaml", false, "Output as YAML")
	rootCmd.AddCommand(auditCmd)
}
