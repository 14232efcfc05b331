package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/rollcall/attendance/internal/audit"
	"github.com/rollcall/attendance/internal/types"
	"github.com/rollcall/attendance/internal/watcher"
)

// colorProfile disables color when stdout is not a terminal.
func colorProfile() termenv.Profile {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

var (
	renderer     = newRenderer()
	successStyle = renderer.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle    = renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	labelStyle   = renderer.NewStyle().Faint(true)
)

func newRenderer() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(os.Stdout)
	r.SetColorProfile(colorProfile())
	return r
}

func auditStyles() audit.Styles {
	return audit.NewStyles(os.Stdout, colorProfile())
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func printResult(r types.SyncResult) {
	fmt.Printf("  %s %d  %s %d  %s %d\n",
		labelStyle.Render("created"), r.Created,
		labelStyle.Render("updated"), r.Updated,
		labelStyle.Render("errors"), r.Errors)
	for _, detail := range r.ErrorDetails {
		fmt.Printf("    - %s\n", detail)
	}
}

func printReport(report watcher.CycleReport) {
	if jsonOutput {
		outputJSON(report)
		return
	}
	if report.Success {
		fmt.Println(successStyle.Render("✓ " + report.Message))
	} else {
		fmt.Println(failStyle.Render("✗ " + report.Message))
	}
	for _, u := range report.Units {
		line := u.Label
		if u.Date != "" {
			line += " (" + u.Date + ")"
		}
		fmt.Println(line)
		if u.Error != "" {
			fmt.Printf("    %s %s\n", failStyle.Render("error:"), u.Error)
			continue
		}
		printResult(u.Result)
	}
}
