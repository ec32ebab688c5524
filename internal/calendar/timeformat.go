package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatTime12Hour converts a 24-hour "HH:MM" string to "H:MM AM/PM".
// Hour 0 maps to 12 AM and hour 12 to 12 PM; minutes are zero-padded, so
// loosely padded input like "9:5" still normalizes to "9:05 AM". Input
// without a colon returns ""; input with non-numeric parts is returned
// unchanged. Never errors.
func FormatTime12Hour(s string) string {
	if s == "" || !strings.Contains(s, ":") {
		return ""
	}

	parts := strings.SplitN(s, ":", 2)
	hours, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
	minutes, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errH != nil || errM != nil {
		return s
	}

	ampm := "AM"
	if hours >= 12 {
		ampm = "PM"
	}
	hour12 := hours % 12
	if hour12 == 0 {
		hour12 = 12
	}

	return fmt.Sprintf("%d:%02d %s", hour12, minutes, ampm)
}
