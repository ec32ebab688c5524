package calendar

import (
	"fmt"
	"sort"
	"time"

	"exocal/internal/model"
)

// descriptionLimit is the rune count after which an event description is
// truncated in the grid.
const descriptionLimit = 20

// placeholderBackgrounds are the decorative backgrounds cycled through on
// days with no events, so adjacent empty cells don't repeat.
var placeholderBackgrounds = []string{
	"meadow",
	"harbor",
	"orchard",
	"summit",
}

// PlaceholderIndex selects the background for the n-th empty day of a
// rendered month (counting in day order from zero).
func PlaceholderIndex(n int) int {
	return n % len(placeholderBackgrounds)
}

// EventItem is one event prepared for display in a day cell.
type EventItem struct {
	Event     model.CalendarEvent
	TimeLabel string
	Title     string
}

// DayCell is one cell of the month grid. Leading alignment cells have
// Day 0 and an empty date.
type DayCell struct {
	Day         int
	Date        string
	Events      []EventItem
	Holidays    []model.Holiday
	Placeholder string
	Editable    bool
	Today       bool
}

// MonthGrid is the rendering model for one month: a header row of weekday
// names and a Sunday-aligned sequence of cells.
type MonthGrid struct {
	Year     int
	Month    time.Month
	Title    string
	DayNames [7]string
	Cells    []DayCell
}

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// SortEvents orders events by date ascending, then start time ascending
// with untimed events first. The remote query already orders by date; this
// fixes the within-day order.
func SortEvents(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		a, b := events[i].StartTime, events[j].StartTime
		if (a == "") != (b == "") {
			return a == ""
		}
		return a < b
	})
}

// BuildGrid lays out one month: leading blank cells up to the first day's
// weekday (Sunday = 0), then one cell per day with its events matched by
// exact date string.
func BuildGrid(year int, month time.Month, events []model.CalendarEvent, holidays []model.Holiday, role model.Role, today time.Time) MonthGrid {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	byDate := make(map[string][]model.CalendarEvent)
	for _, e := range events {
		byDate[e.Date] = append(byDate[e.Date], e)
	}
	holidaysByDate := make(map[string][]model.Holiday)
	for _, h := range holidays {
		holidaysByDate[h.Date] = append(holidaysByDate[h.Date], h)
	}

	todayStr := today.Format("2006-01-02")
	editable := role.CanEdit()

	grid := MonthGrid{
		Year:     year,
		Month:    month,
		Title:    fmt.Sprintf("%s %d", month.String(), year),
		DayNames: dayNames,
	}

	for i := 0; i < int(first.Weekday()); i++ {
		grid.Cells = append(grid.Cells, DayCell{})
	}

	emptySeq := 0
	for day := 1; day <= daysInMonth; day++ {
		date := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
		cell := DayCell{
			Day:      day,
			Date:     date,
			Holidays: holidaysByDate[date],
			Editable: editable,
			Today:    date == todayStr,
		}

		for _, e := range byDate[date] {
			cell.Events = append(cell.Events, EventItem{
				Event:     e,
				TimeLabel: timeLabel(e),
				Title:     truncate(e.Description, descriptionLimit),
			})
		}
		if len(cell.Events) == 0 {
			cell.Placeholder = placeholderBackgrounds[PlaceholderIndex(emptySeq)]
			emptySeq++
		}

		grid.Cells = append(grid.Cells, cell)
	}

	return grid
}

func timeLabel(e model.CalendarEvent) string {
	start := FormatTime12Hour(e.StartTime)
	end := FormatTime12Hour(e.EndTime)
	if start != "" && end != "" {
		return start + " - " + end
	}
	return start
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
