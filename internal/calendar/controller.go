package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"exocal/internal/model"
	"exocal/internal/remote"
	"exocal/internal/session"
)

const (
	eventsCollection        = "events"
	announcementsCollection = "announcements"

	// announcementWindow caps the feed to the most recent messages.
	announcementWindow = 20
)

// Placeholder messages shown instead of the grid when there is nothing to
// subscribe to.
const (
	StatusSignedOut   = "Please log in to view events."
	StatusPending     = "Your account is awaiting approval."
	StatusEventsError = "Error loading events."
	StatusFeedError   = "Error loading announcements."
)

// Renderer receives the controller's output. Implementations must tolerate
// being called from subscription delivery goroutines.
type Renderer interface {
	RenderGrid(g MonthGrid)
	RenderAnnouncements(list []model.Announcement)
	RenderStatus(msg string)
}

// HolidayProvider supplies the read-only holiday overlay for one month.
type HolidayProvider interface {
	MonthHolidays(ctx context.Context, year int, month time.Month) []model.Holiday
}

// Controller owns the visible month: it keeps one standing event
// subscription for the displayed range plus one announcement subscription,
// merges the caches with the session role, and renders. Role changes from
// the session store drive subscribe/unsubscribe; stale deliveries from a
// replaced subscription are discarded by generation token.
type Controller struct {
	store    remote.DocumentStore
	sessions *session.Store
	holidays HolidayProvider
	renderer Renderer
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	year          int
	month         time.Month
	events        []model.CalendarEvent
	holidayCache  []model.Holiday
	announcements []model.Announcement
	gen           uint64
	feedGen       uint64
	cancelEvents  func()
	cancelFeed    func()
}

// NewController creates a controller showing the month containing now().
// holidays may be nil to disable the overlay.
func NewController(store remote.DocumentStore, sessions *session.Store, holidays HolidayProvider, renderer Renderer, logger *slog.Logger) *Controller {
	c := &Controller{
		store:    store,
		sessions: sessions,
		holidays: holidays,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
	now := c.now()
	c.year, c.month = now.Year(), now.Month()
	return c
}

// UseLocation pins "today" and the initial month to the given zone. Call
// before Start.
func (c *Controller) UseLocation(loc *time.Location) {
	c.now = func() time.Time { return time.Now().In(loc) }
	now := c.now()
	c.mu.Lock()
	c.year, c.month = now.Year(), now.Month()
	c.mu.Unlock()
}

// Start attaches the controller to session role changes and applies the
// current role. The returned stop func detaches and cancels all
// subscriptions.
func (c *Controller) Start() func() {
	unsubscribe := c.sessions.Subscribe(c.onRoleChanged)
	c.onRoleChanged(c.sessions.Role())

	return func() {
		unsubscribe()
		c.teardown()
	}
}

// ShowMonth navigates the view to the given month. Any previous event
// subscription is cancelled before the new one opens, so only the most
// recent month's data is authoritative.
func (c *Controller) ShowMonth(year int, month time.Month) {
	c.mu.Lock()
	c.year, c.month = year, month
	c.events = nil
	c.holidayCache = nil
	signedIn := c.sessions.Role().SignedIn()
	c.mu.Unlock()

	if signedIn {
		c.subscribeEvents()
	}
}

// NextMonth and PrevMonth step the displayed month.
func (c *Controller) NextMonth() { c.stepMonth(1) }
func (c *Controller) PrevMonth() { c.stepMonth(-1) }

func (c *Controller) stepMonth(delta int) {
	c.mu.Lock()
	t := time.Date(c.year, c.month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, delta, 0)
	c.mu.Unlock()
	c.ShowMonth(t.Year(), t.Month())
}

// Displayed returns the currently displayed year and month.
func (c *Controller) Displayed() (int, time.Month) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.year, c.month
}

// Events returns a copy of the cached events for the displayed month.
func (c *Controller) Events() []model.CalendarEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.CalendarEvent(nil), c.events...)
}

// Announcements returns a copy of the cached feed, newest first.
func (c *Controller) Announcements() []model.Announcement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Announcement(nil), c.announcements...)
}

// Grid builds the rendering model for the current caches and role.
func (c *Controller) Grid() MonthGrid {
	c.mu.Lock()
	year, month := c.year, c.month
	events := append([]model.CalendarEvent(nil), c.events...)
	holidays := append([]model.Holiday(nil), c.holidayCache...)
	c.mu.Unlock()

	return BuildGrid(year, month, events, holidays, c.sessions.Role(), c.now())
}

// Refresh re-renders the current caches, picking up a new "today"
// highlight after a date change.
func (c *Controller) Refresh() {
	if c.sessions.Role().SignedIn() {
		c.renderer.RenderGrid(c.Grid())
	}
}

// onRoleChanged reacts to session store notifications: a signed-in role
// (re)subscribes everything for the current month, anything else tears
// down and shows a placeholder.
func (c *Controller) onRoleChanged(role model.Role) {
	if role.SignedIn() {
		c.subscribeEvents()
		c.subscribeAnnouncements()
		return
	}

	c.teardown()

	c.mu.Lock()
	c.events = nil
	c.holidayCache = nil
	c.announcements = nil
	c.mu.Unlock()

	if role == model.RolePending {
		c.renderer.RenderStatus(StatusPending)
	} else {
		c.renderer.RenderStatus(StatusSignedOut)
	}
}

// MonthBounds returns the inclusive first and last day strings of a month.
func MonthBounds(year int, month time.Month) (string, string) {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return fmt.Sprintf("%04d-%02d-01", year, int(month)),
		fmt.Sprintf("%04d-%02d-%02d", year, int(month), last)
}

func (c *Controller) subscribeEvents() {
	c.mu.Lock()
	if c.cancelEvents != nil {
		c.cancelEvents()
		c.cancelEvents = nil
	}
	c.gen++
	gen := c.gen
	year, month := c.year, c.month
	c.mu.Unlock()

	first, lastDay := MonthBounds(year, month)
	q := remote.Query{
		Collection: eventsCollection,
		Field:      "date",
		Start:      first,
		End:        lastDay,
		OrderBy:    "date",
	}

	cancel, err := c.store.Subscribe(context.Background(), q,
		func(snap remote.Snapshot) { c.onEventSnapshot(gen, snap) },
		func(err error) { c.onEventError(gen, err) },
	)
	if err != nil {
		c.logger.Error("subscribe events", "error", err)
		c.renderer.RenderStatus(StatusEventsError)
		return
	}

	c.mu.Lock()
	if gen == c.gen {
		c.cancelEvents = cancel
		c.mu.Unlock()
	} else {
		// A newer subscription replaced this one while it was opening.
		c.mu.Unlock()
		cancel()
		return
	}

	if c.holidays != nil {
		holidays := c.holidays.MonthHolidays(context.Background(), year, month)
		c.mu.Lock()
		if gen == c.gen {
			c.holidayCache = holidays
		}
		c.mu.Unlock()
	}
}

func (c *Controller) onEventSnapshot(gen uint64, snap remote.Snapshot) {
	events := make([]model.CalendarEvent, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		events = append(events, eventFromDoc(doc))
	}
	SortEvents(events)

	c.mu.Lock()
	if gen != c.gen {
		// Late delivery from a cancelled subscription.
		c.mu.Unlock()
		return
	}
	c.events = events
	c.mu.Unlock()

	c.renderer.RenderGrid(c.Grid())
}

func (c *Controller) onEventError(gen uint64, err error) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	c.logger.Error("event subscription", "error", err)
	c.renderer.RenderStatus(StatusEventsError)
}

func (c *Controller) subscribeAnnouncements() {
	c.mu.Lock()
	if c.cancelFeed != nil {
		// Feed subscription is month-independent; keep the existing one.
		c.mu.Unlock()
		return
	}
	gen := c.feedGen
	c.mu.Unlock()

	q := remote.Query{
		Collection: announcementsCollection,
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      announcementWindow,
	}

	cancel, err := c.store.Subscribe(context.Background(), q,
		func(snap remote.Snapshot) { c.onAnnouncementSnapshot(gen, snap) },
		func(err error) { c.onAnnouncementError(gen, err) },
	)
	if err != nil {
		c.logger.Error("subscribe announcements", "error", err)
		c.renderer.RenderStatus(StatusFeedError)
		return
	}

	c.mu.Lock()
	if gen == c.feedGen {
		c.cancelFeed = cancel
		c.mu.Unlock()
		return
	}
	// Torn down while the subscription was opening.
	c.mu.Unlock()
	cancel()
}

func (c *Controller) onAnnouncementSnapshot(gen uint64, snap remote.Snapshot) {
	list := make([]model.Announcement, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		list = append(list, model.Announcement{
			ID:         doc.ID,
			Message:    doc.Str("message"),
			AuthorName: doc.Str("author_name"),
			AuthorID:   doc.Str("author_id"),
			Timestamp:  doc.Time("timestamp"),
		})
	}

	c.mu.Lock()
	if gen != c.feedGen {
		// Late delivery from a cancelled subscription.
		c.mu.Unlock()
		return
	}
	c.announcements = list
	c.mu.Unlock()

	c.renderer.RenderAnnouncements(list)
}

func (c *Controller) onAnnouncementError(gen uint64, err error) {
	c.mu.Lock()
	stale := gen != c.feedGen
	c.mu.Unlock()
	if stale {
		return
	}
	c.logger.Error("announcement subscription", "error", err)
	c.renderer.RenderStatus(StatusFeedError)
}

func (c *Controller) teardown() {
	c.mu.Lock()
	cancelEvents, cancelFeed := c.cancelEvents, c.cancelFeed
	c.cancelEvents, c.cancelFeed = nil, nil
	c.gen++
	c.feedGen++
	c.mu.Unlock()

	if cancelEvents != nil {
		cancelEvents()
	}
	if cancelFeed != nil {
		cancelFeed()
	}
}

func eventFromDoc(doc remote.Document) model.CalendarEvent {
	return model.CalendarEvent{
		ID:          doc.ID,
		Date:        doc.Str("date"),
		StartTime:   doc.Str("start_time"),
		EndTime:     doc.Str("end_time"),
		Location:    doc.Str("location"),
		Description: doc.Str("description"),
	}
}
