package holiday

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"

	"exocal/internal/model"
)

// ICSSource fetches holidays from an ICS feed, one VEVENT per holiday.
// Events without a parseable start date are skipped.
type ICSSource struct {
	client *http.Client
	url    string
}

func NewICSSource(url string) *ICSSource {
	return &ICSSource{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
	}
}

func (s *ICSSource) Holidays(ctx context.Context, year int) ([]model.Holiday, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("ics request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ics request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read ics feed: %w", err)
	}

	return ParseFeed(body, year)
}

// ParseFeed extracts the holidays of one year from an ICS payload.
func ParseFeed(body []byte, year int) ([]model.Holiday, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics feed: %w", err)
	}

	var out []model.Holiday
	for _, ve := range cal.Events() {
		start, err := ve.GetStartAt()
		if err != nil || start.Year() != year {
			continue
		}

		h := model.Holiday{
			Date:     start.Format("2006-01-02"),
			Category: "Public",
		}
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			h.Name = p.Value
		}
		if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil && p.Value != "" {
			h.Category = p.Value
		}
		if h.Name == "" {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
