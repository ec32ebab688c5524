// Package view renders the calendar to a text terminal. It implements
// calendar.Renderer; every Render* call repaints its whole panel.
package view

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"exocal/internal/calendar"
	"exocal/internal/model"
)

const cellWidth = 5

// Text writes the month grid, the announcement feed and status messages
// to a single writer. Renders may arrive from subscription goroutines, so
// writes are serialized.
type Text struct {
	mu sync.Mutex
	w  io.Writer
}

func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) RenderGrid(g calendar.MonthGrid) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	width := cellWidth * 7

	pad := (width - len(g.Title)) / 2
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(&b, "\n%s%s\n", strings.Repeat(" ", pad), g.Title)

	for _, name := range g.DayNames {
		fmt.Fprintf(&b, "%-*s", cellWidth, name)
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", width))
	b.WriteString("\n")

	for i, cell := range g.Cells {
		b.WriteString(formatCell(cell))
		if (i+1)%7 == 0 {
			b.WriteString("\n")
		}
	}
	if len(g.Cells)%7 != 0 {
		b.WriteString("\n")
	}

	listDays(&b, g)

	fmt.Fprint(t.w, b.String())
}

// formatCell renders one fixed-width cell: the day number, brackets for
// today, * when the day has events and + when it has a holiday.
func formatCell(cell calendar.DayCell) string {
	if cell.Day == 0 {
		return strings.Repeat(" ", cellWidth)
	}

	marks := ""
	if len(cell.Events) > 0 {
		marks += "*"
	}
	if len(cell.Holidays) > 0 {
		marks += "+"
	}

	day := fmt.Sprintf("%d", cell.Day)
	if cell.Today {
		day = "[" + day + "]"
	}
	return fmt.Sprintf("%-*s", cellWidth, day+marks)
}

// listDays prints the events and holidays of the month below the grid.
func listDays(b *strings.Builder, g calendar.MonthGrid) {
	wrote := false
	for _, cell := range g.Cells {
		if len(cell.Events) == 0 && len(cell.Holidays) == 0 {
			continue
		}
		if !wrote {
			b.WriteString("\n")
			wrote = true
		}
		for _, h := range cell.Holidays {
			fmt.Fprintf(b, "%s %2d  %s (%s)\n", g.Month.String()[:3], cell.Day, h.Name, h.Category)
		}
		for _, e := range cell.Events {
			line := fmt.Sprintf("%s %2d", g.Month.String()[:3], cell.Day)
			if e.TimeLabel != "" {
				line += "  " + e.TimeLabel
			}
			line += "  " + e.Title
			if e.Event.Location != "" {
				line += " @ " + e.Event.Location
			}
			b.WriteString(line + "\n")
		}
	}
}

func (t *Text) RenderAnnouncements(list []model.Announcement) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	b.WriteString("\nAnnouncements\n")
	if len(list) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, a := range list {
		stamp := ""
		if !a.Timestamp.IsZero() {
			stamp = a.Timestamp.Format("Jan 2 15:04") + "  "
		}
		author := a.AuthorName
		if author == "" {
			author = "someone"
		}
		fmt.Fprintf(&b, "  %s%s: %s\n", stamp, author, a.Message)
	}
	fmt.Fprint(t.w, b.String())
}

func (t *Text) RenderStatus(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "\n%s\n", msg)
}
