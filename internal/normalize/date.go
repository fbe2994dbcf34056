package normalize

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"2006/01/02",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Date parses an export date. When no known layout matches it returns now() and flagged=true
// so the row is still imported and can be reviewed by the operator.
func Date(raw string, now func() time.Time) (t time.Time, flagged bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"'`)
	if s != "" {
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, false
			}
		}
	}
	if now == nil {
		now = time.Now
	}
	return now(), true
}

// DateKey formats a date the way natural keys compare it.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
