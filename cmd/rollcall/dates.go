package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/rollcall/attendance/internal/reconcile"
	"github.com/rollcall/attendance/internal/types"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDate accepts YYYY-MM-DD, M/D, M/D/YYYY or a phrase such as
// "last saturday" and returns an ISO date.
func parseDate(raw string, now time.Time) (string, error) {
	if raw == "" {
		return "", nil
	}
	if d, err := reconcile.NormalizeDate(raw, now); err == nil {
		return d, nil
	}
	r, err := dateParser.Parse(raw, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", raw, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q", raw)
	}
	return r.Time.Format(types.DateLayout), nil
}
