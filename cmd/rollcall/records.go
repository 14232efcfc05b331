package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rollcall/attendance/internal/storage"
	"github.com/rollcall/attendance/internal/types"
)

var memberCmd = &cobra.Command{
	Use:     "member",
	GroupID: "data",
	Short:   "Manage the member roster",
}

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx)
		defer a.Close()

		all, _ := cmd.Flags().GetBool("all")
		members, err := a.coord.Members().GetAll(ctx, storage.MemberFilter{IncludeInactive: all})
		exitOnErr(err)
		if jsonOutput {
			outputJSON(members)
			return
		}
		t := newTable("ID", "Name", "Category", "Registered", "Active")
		for _, m := range members {
			t.Row(strconv.FormatInt(m.ID, 10), m.FirstName+" "+m.LastName, m.Category, m.RegistrationDate, strconv.FormatBool(m.IsActive))
		}
		fmt.Println(t)
	},
}

var memberAddCmd = &cobra.Command{
	Use:   "add <first> <last>",
	Short: "Add a member",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		category, _ := cmd.Flags().GetString("category")
		registered, _ := cmd.Flags().GetString("registered")
		date, err := parseDate(registered, time.Now())
		exitOnErr(err)
		if date == "" {
			date = time.Now().Format(types.DateLayout)
		}

		a := mustOpenApp(ctx)
		defer a.Close()
		m, err := a.coord.Members().Create(ctx, &types.Member{
			FirstName: args[0], LastName: args[1], Category: category,
			RegistrationDate: date, IsActive: true,
		})
		exitOnErr(err)
		if jsonOutput {
			outputJSON(m)
			return
		}
		fmt.Printf("%s member %d: %s %s\n", successStyle.Render("✓ Created"), m.ID, m.FirstName, m.LastName)
	},
}

var memberDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Mark a member inactive, keeping their attendance",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		id := parseID(args[0])
		a := mustOpenApp(ctx)
		defer a.Close()

		m, err := a.coord.Members().Deactivate(ctx, id)
		exitOnErr(err)
		fmt.Printf("%s member %d: %s %s\n", successStyle.Render("✓ Deactivated"), m.ID, m.FirstName, m.LastName)
	},
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a member and their attendance from both stores",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		id := parseID(args[0])
		a := mustOpenApp(ctx)
		defer a.Close()

		exitOnErr(a.coord.Members().Delete(ctx, id))
		fmt.Printf("%s member %d\n", successStyle.Render("✓ Deleted"), id)
	},
}

var attendanceCmd = &cobra.Command{
	Use:     "attendance",
	GroupID: "data",
	Short:   "View and record attendance",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		rawDate, _ := cmd.Flags().GetString("date")
		date, err := parseDate(rawDate, time.Now())
		exitOnErr(err)

		a := mustOpenApp(ctx)
		defer a.Close()
		records, err := a.coord.Attendance().GetAll(ctx, storage.AttendanceFilter{Date: date})
		exitOnErr(err)
		if jsonOutput {
			outputJSON(records)
			return
		}
		t := newTable("ID", "Member", "Date", "Status", "Notes")
		for _, r := range records {
			t.Row(strconv.FormatInt(r.ID, 10), strconv.FormatInt(r.MemberID, 10), r.SabbathDate, string(r.Status), r.Notes)
		}
		fmt.Println(t)
	},
}

var attendanceSetCmd = &cobra.Command{
	Use:   "set <member-id> <present|absent|other>",
	Short: "Record one member's attendance for a date",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		memberID := parseID(args[0])
		status := types.ParseStatus(args[1])
		if !status.Valid() {
			fmt.Fprintf(os.Stderr, "Error: invalid status %q\n", args[1])
			os.Exit(1)
		}
		rawDate, _ := cmd.Flags().GetString("date")
		date, err := parseDate(rawDate, time.Now())
		exitOnErr(err)
		if date == "" {
			fmt.Fprintf(os.Stderr, "Error: --date is required\n")
			os.Exit(1)
		}
		notes, _ := cmd.Flags().GetString("notes")

		a := mustOpenApp(ctx)
		defer a.Close()
		if _, err := a.coord.Members().Get(ctx, memberID); err != nil {
			exitOnErr(fmt.Errorf("member %d: %w", memberID, err))
		}
		rec, created, err := a.coord.Attendance().Upsert(ctx, &types.AttendanceRecord{
			MemberID: memberID, SabbathDate: date, Status: status, Notes: notes,
		})
		exitOnErr(err)
		verb := "Updated"
		if created {
			verb = "Recorded"
		}
		fmt.Printf("%s %s: member %d %s\n", successStyle.Render("✓ "+verb), rec.SabbathDate, rec.MemberID, rec.Status)
	},
}

var attendanceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an attendance record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		id := parseID(args[0])
		a := mustOpenApp(ctx)
		defer a.Close()

		exitOnErr(a.coord.Attendance().Delete(ctx, id))
		fmt.Printf("%s attendance record %d\n", successStyle.Render("✓ Deleted"), id)
	},
}

var visitorCmd = &cobra.Command{
	Use:     "visitor",
	GroupID: "data",
	Short:   "Manage visitors",
}

var visitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visitors",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		rawDate, _ := cmd.Flags().GetString("date")
		date, err := parseDate(rawDate, time.Now())
		exitOnErr(err)

		a := mustOpenApp(ctx)
		defer a.Close()
		visitors, err := a.coord.Visitors().GetAll(ctx, storage.VisitorFilter{Date: date})
		exitOnErr(err)
		if jsonOutput {
			outputJSON(visitors)
			return
		}
		t := newTable("ID", "Name", "Date", "Notes")
		for _, v := range visitors {
			t.Row(v.ID, v.DisplayName(), v.SabbathDate, v.Notes)
		}
		fmt.Println(t)
	},
}

var visitorAddCmd = &cobra.Command{
	Use:   "add <first> <last>",
	Short: "Record a visitor",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		rawDate, _ := cmd.Flags().GetString("date")
		date, err := parseDate(rawDate, time.Now())
		exitOnErr(err)
		if date == "" {
			fmt.Fprintf(os.Stderr, "Error: --date is required\n")
			os.Exit(1)
		}
		notes, _ := cmd.Flags().GetString("notes")

		a := mustOpenApp(ctx)
		defer a.Close()
		v, err := a.coord.Visitors().Create(ctx, &types.Visitor{
			FirstName: args[0], LastName: args[1], SabbathDate: date, Notes: notes,
		})
		exitOnErr(err)
		if jsonOutput {
			outputJSON(v)
			return
		}
		fmt.Printf("%s visitor %s (%s)\n", successStyle.Render("✓ Recorded"), v.DisplayName(), v.ID)
	},
}

func init() {
	memberListCmd.Flags().Bool("all", false, "Include inactive members")
	memberAddCmd.Flags().String("category", "adult", "Member category")
	memberAddCmd.Flags().String("registered", "", "Registration date (default: today)")
	memberCmd.AddCommand(memberListCmd, memberAddCmd, memberDeactivateCmd, memberRemoveCmd)

	attendanceListCmd.Flags().String("date", "", "Only list this date")
	attendanceSetCmd.Flags().String("date", "", "Attendance date (required)")
	attendanceSetCmd.Flags().String("notes", "", "Notes")
	attendanceCmd.AddCommand(attendanceListCmd, attendanceSetCmd, attendanceRemoveCmd)

	visitorListCmd.Flags().String("date", "", "Only list this date")
	visitorAddCmd.Flags().String("date", "", "Visit date (required)")
	visitorAddCmd.Flags().String("notes", "", "Notes")
	visitorCmd.AddCommand(visitorListCmd, visitorAddCmd)

	rootCmd.AddCommand(memberCmd, attendanceCmd, visitorCmd)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(labelStyle).
		Headers(headers...)
}

func parseID(raw string) int64 {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid id %q\n", raw)
		os.Exit(1)
	}
	return id
}
