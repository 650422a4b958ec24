package entity

import (
	"fmt"
	"strings"
	"time"
)

// invoiceDateLayouts lists the date spellings seen on vendor invoices.
// Dashed and dotted day-first forms are European (DD-MM-YYYY).
var invoiceDateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	time.RFC3339,
}

// ParseInvoiceDate parses any of the supported invoice date spellings into a UTC date
func ParseInvoiceDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}

// DaysBetween returns (a - b) in fractional days
func DaysBetween(a, b time.Time) float64 {
	return a.Sub(b).Hours() / 24
}

// DottedDateToISO converts a DD.MM.YYYY token into YYYY-MM-DD, padding day and month.
// Tokens that do not have three dotted parts are returned unchanged.
func DottedDateToISO(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return token
	}
	day := leftPad(parts[0], 2)
	month := leftPad(parts[1], 2)
	return fmt.Sprintf("%s-%s-%s", parts[2], month, day)
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
