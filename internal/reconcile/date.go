package reconcile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rollcall/attendance/internal/types"
)

// SheetPrefix starts the title of every worksheet that holds a date.
const SheetPrefix = "Sabbath "

var slashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?$`)

// NormalizeDate converts YYYY-MM-DD, M/D or M/D/YYYY to zero-padded ISO form.
// A missing year is taken from now; a two-digit year is in the 2000s.
func NormalizeDate(raw string, now time.Time) (string, error) {
	s := strings.TrimSpace(raw)
	if types.IsISODate(s) {
		return s, nil
	}

	m := slashDate.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("unrecognized date %q", raw)
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", fmt.Errorf("invalid calendar date %q", raw)
	}
	return t.Format(types.DateLayout), nil
}

// ParseSheetTitle returns the normalized date of a "Sabbath <date>" title.
// ok is false for titles that do not follow the convention.
func ParseSheetTitle(title string, now time.Time) (date string, ok bool) {
	t := strings.TrimSpace(title)
	if len(t) <= len(SheetPrefix) || !strings.EqualFold(t[:len(SheetPrefix)], SheetPrefix) {
		return "", false
	}
	date, err := NormalizeDate(t[len(SheetPrefix):], now)
	if err != nil {
		return "", false
	}
	return date, true
}
