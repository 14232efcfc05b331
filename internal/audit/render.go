package audit

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"
)

// Styles renders report text.
type Styles struct {
	Title lipgloss.Style
	OK    lipgloss.Style
	Warn  lipgloss.Style
	Kind  lipgloss.Style
	Dim   lipgloss.Style
}

// NewStyles builds styles for w. Pass termenv.Ascii to disable color.
func NewStyles(w io.Writer, profile termenv.Profile) Styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)
	return Styles{
		Title: r.NewStyle().Bold(true),
		OK:    r.NewStyle().Foreground(lipgloss.Color("2")),
		Warn:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		Kind:  r.NewStyle().Foreground(lipgloss.Color("1")).Width(18),
		Dim:   r.NewStyle().Faint(true),
	}
}

// WriteText prints a human-readable report.
func WriteText(w io.Writer, r Report, s Styles) error {
	fmt.Fprintln(w, s.Title.Render("Consistency audit"))
	fmt.Fprintf(w, "  flat store: %d records\n", r.FlatCount)
	fmt.Fprintf(w, "  mirror:     %d records\n", r.MirrorCount)
	fmt.Fprintln(w)

	if r.Consistent {
		_, err := fmt.Fprintln(w, s.OK.Render("✓ stores are consistent"))
		return err
	}

	counts := r.Counts()
	fmt.Fprintln(w, s.Warn.Render(fmt.Sprintf("✗ %d discrepancies", len(r.Discrepancies))))
	for _, k := range []Kind{MissingInMirror, MissingInFlat, Mismatch, DuplicateInFlat} {
		if counts[k] > 0 {
			fmt.Fprintf(w, "  %s %d\n", k, counts[k])
		}
	}
	fmt.Fprintln(w)

	for _, d := range r.Discrepancies {
		line := fmt.Sprintf("%s member %d on %s", s.Kind.Render(string(d.Kind)), d.MemberID, d.SabbathDate)
		switch d.Kind {
		case Mismatch:
			line += s.Dim.Render(fmt.Sprintf("  flat=%s/%q mirror=%s/%q",
				d.Flat.Status, d.Flat.Notes, d.Mirror.Status, d.Mirror.Notes))
		case MissingInMirror:
			line += s.Dim.Render(fmt.Sprintf("  flat=%s", d.Flat.Status))
		case MissingInFlat:
			line += s.Dim.Render(fmt.Sprintf("  mirror=%s", d.Mirror.Status))
		case DuplicateInFlat:
			line += s.Dim.Render(fmt.Sprintf("  flat id=%d %s", d.Flat.ID, d.Flat.Status))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML prints the report as YAML.
func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
