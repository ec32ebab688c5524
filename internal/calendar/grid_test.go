package calendar

import (
	"strings"
	"testing"
	"time"

	"exocal/internal/model"
)

func TestBuildGridLayout(t *testing.T) {
	// March 2026 starts on a Sunday and has 31 days.
	grid := BuildGrid(2026, time.March, nil, nil, model.RoleViewer, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	if grid.Title != "March 2026" {
		t.Errorf("title = %q", grid.Title)
	}
	if len(grid.Cells) != 31 {
		t.Errorf("cells = %d, want 31 (no leading blanks)", len(grid.Cells))
	}
	if grid.Cells[0].Day != 1 || grid.Cells[0].Date != "2026-03-01" {
		t.Errorf("first cell = %+v", grid.Cells[0])
	}

	var today int
	for _, cell := range grid.Cells {
		if cell.Today {
			today = cell.Day
		}
	}
	if today != 10 {
		t.Errorf("today highlight on day %d, want 10", today)
	}
}

func TestBuildGridLeadingBlanks(t *testing.T) {
	// June 2026 starts on a Monday: one leading blank cell.
	grid := BuildGrid(2026, time.June, nil, nil, model.RoleViewer, time.Time{})

	if len(grid.Cells) != 31 {
		t.Fatalf("cells = %d, want 1 blank + 30 days", len(grid.Cells))
	}
	if grid.Cells[0].Day != 0 {
		t.Errorf("first cell should be a blank, got day %d", grid.Cells[0].Day)
	}
	if grid.Cells[1].Day != 1 {
		t.Errorf("second cell should be day 1, got %d", grid.Cells[1].Day)
	}
}

func TestBuildGridEventsAndPlaceholders(t *testing.T) {
	events := []model.CalendarEvent{
		{ID: "a", Date: "2026-03-03", StartTime: "10:00", Description: "Choir practice"},
		{ID: "b", Date: "2026-03-17", StartTime: "18:30", Description: "Potluck"},
	}
	grid := BuildGrid(2026, time.March, events, nil, model.RoleViewer, time.Time{})

	withEvents := 0
	for _, cell := range grid.Cells {
		if cell.Day == 0 {
			continue
		}
		if len(cell.Events) > 0 {
			withEvents++
			if cell.Placeholder != "" {
				t.Errorf("day %d has both events and a placeholder", cell.Day)
			}
			continue
		}
		if cell.Placeholder == "" {
			t.Errorf("day %d has no events and no placeholder", cell.Day)
		}
	}
	if withEvents != 2 {
		t.Errorf("cells with events = %d, want 2", withEvents)
	}

	// Placeholders cycle round-robin over empty days in day order.
	var seen []string
	for _, cell := range grid.Cells {
		if cell.Placeholder != "" {
			seen = append(seen, cell.Placeholder)
		}
		if len(seen) == len(placeholderBackgrounds)+1 {
			break
		}
	}
	if seen[0] != placeholderBackgrounds[0] || seen[len(placeholderBackgrounds)] != placeholderBackgrounds[0] {
		t.Errorf("placeholder cycle broken: %v", seen)
	}
}

func TestPlaceholderIndexDeterministic(t *testing.T) {
	for n := 0; n < 10; n++ {
		want := n % len(placeholderBackgrounds)
		if got := PlaceholderIndex(n); got != want {
			t.Errorf("PlaceholderIndex(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestBuildGridEditableForUploaderOnly(t *testing.T) {
	grid := BuildGrid(2026, time.March, nil, nil, model.RoleUploader, time.Time{})
	if !grid.Cells[0].Editable {
		t.Error("uploader cells should be editable")
	}

	grid = BuildGrid(2026, time.March, nil, nil, model.RoleViewer, time.Time{})
	if grid.Cells[0].Editable {
		t.Error("viewer cells should not be editable")
	}
}

func TestBuildGridEventItem(t *testing.T) {
	events := []model.CalendarEvent{
		{ID: "a", Date: "2026-03-03", StartTime: "13:05", EndTime: "14:30", Description: "A very long description that keeps going"},
		{ID: "b", Date: "2026-03-04", Description: "Short"},
	}
	grid := BuildGrid(2026, time.March, events, nil, model.RoleViewer, time.Time{})

	item := grid.Cells[2].Events[0]
	if item.TimeLabel != "1:05 PM - 2:30 PM" {
		t.Errorf("time label = %q", item.TimeLabel)
	}
	if !strings.HasSuffix(item.Title, "...") || len([]rune(item.Title)) != descriptionLimit+3 {
		t.Errorf("truncated title = %q", item.Title)
	}

	short := grid.Cells[3].Events[0]
	if short.Title != "Short" || short.TimeLabel != "" {
		t.Errorf("untimed short event = %+v", short)
	}
}

func TestBuildGridHolidayOverlay(t *testing.T) {
	holidays := []model.Holiday{{Date: "2026-03-17", Name: "St. Patrick's Day", Category: "observance"}}
	grid := BuildGrid(2026, time.March, nil, holidays, model.RoleViewer, time.Time{})

	if len(grid.Cells[16].Holidays) != 1 || grid.Cells[16].Holidays[0].Name != "St. Patrick's Day" {
		t.Errorf("day 17 holidays = %+v", grid.Cells[16].Holidays)
	}
}

func TestSortEvents(t *testing.T) {
	events := []model.CalendarEvent{
		{ID: "late", Date: "2026-03-03", StartTime: "18:00"},
		{ID: "untimed", Date: "2026-03-03"},
		{ID: "early", Date: "2026-03-03", StartTime: "09:00"},
		{ID: "prev-day", Date: "2026-03-02", StartTime: "23:00"},
	}
	SortEvents(events)

	want := []string{"prev-day", "untimed", "early", "late"}
	for i, id := range want {
		if events[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(events), want)
		}
	}
}

func ids(events []model.CalendarEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestMonthBounds(t *testing.T) {
	tests := []struct {
		year        int
		month       time.Month
		first, last string
	}{
		{2026, time.March, "2026-03-01", "2026-03-31"},
		{2026, time.February, "2026-02-01", "2026-02-28"},
		{2028, time.February, "2028-02-01", "2028-02-29"},
		{2026, time.April, "2026-04-01", "2026-04-30"},
	}

	for _, tt := range tests {
		first, last := MonthBounds(tt.year, tt.month)
		if first != tt.first || last != tt.last {
			t.Errorf("MonthBounds(%d, %v) = (%q, %q), want (%q, %q)",
				tt.year, tt.month, first, last, tt.first, tt.last)
		}
	}
}
