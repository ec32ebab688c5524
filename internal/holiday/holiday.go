// Package holiday supplies the read-only public-holiday overlay for the
// month grid. Holidays come from a pluggable Source fetched per year and
// are cached; lookup failures degrade to an empty overlay.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"exocal/internal/model"
)

// Source fetches all holidays for one year.
type Source interface {
	Holidays(ctx context.Context, year int) ([]model.Holiday, error)
}

// Service caches holidays per year and answers per-month queries. It
// implements calendar.HolidayProvider.
type Service struct {
	source Source
	logger *slog.Logger

	mu    sync.Mutex
	cache map[int][]model.Holiday
}

func NewService(source Source, logger *slog.Logger) *Service {
	return &Service{
		source: source,
		logger: logger,
		cache:  make(map[int][]model.Holiday),
	}
}

// MonthHolidays returns the holidays falling in the given month. A fetch
// failure returns the cached year if present, otherwise an empty overlay.
func (s *Service) MonthHolidays(ctx context.Context, year int, month time.Month) []model.Holiday {
	s.mu.Lock()
	cached, ok := s.cache[year]
	s.mu.Unlock()

	if !ok {
		fetched, err := s.source.Holidays(ctx, year)
		if err != nil {
			s.logger.Warn("holiday lookup failed", "year", year, "error", err)
			return nil
		}
		s.mu.Lock()
		s.cache[year] = fetched
		s.mu.Unlock()
		cached = fetched
	}

	prefix := fmt.Sprintf("%04d-%02d-", year, int(month))
	var out []model.Holiday
	for _, h := range cached {
		if strings.HasPrefix(h.Date, prefix) {
			out = append(out, h)
		}
	}
	return out
}

// Invalidate drops the year cache so the next lookup hits the source
// again. The daily refresh uses this to pick up feed changes.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[int][]model.Holiday)
	s.mu.Unlock()
}

// APISource fetches public holidays from a Nager.Date style JSON API:
// GET {base}/{year}/{country} returning an array of holiday objects.
type APISource struct {
	client  *http.Client
	baseURL string
	country string
}

func NewAPISource(country string) *APISource {
	return &APISource{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://date.nager.at/api/v3/PublicHolidays",
		country: country,
	}
}

type apiHoliday struct {
	Date      string   `json:"date"`
	LocalName string   `json:"localName"`
	Name      string   `json:"name"`
	Types     []string `json:"types"`
}

func (s *APISource) Holidays(ctx context.Context, year int) ([]model.Holiday, error) {
	url := fmt.Sprintf("%s/%d/%s", s.baseURL, year, s.country)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("holiday API request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holiday API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holiday API returned status %d", resp.StatusCode)
	}

	var raw []apiHoliday
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode holiday response: %w", err)
	}

	out := make([]model.Holiday, 0, len(raw))
	for _, h := range raw {
		name := h.LocalName
		if name == "" {
			name = h.Name
		}
		category := "Public"
		if len(h.Types) > 0 {
			category = h.Types[0]
		}
		out = append(out, model.Holiday{Date: h.Date, Name: name, Category: category})
	}
	return out, nil
}
