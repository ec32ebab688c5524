// Package editor implements the event edit workflow and announcement
// posting. All mutations are role-gated locally before any network call.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"exocal/internal/model"
	"exocal/internal/remote"
	"exocal/internal/session"
)

const (
	eventsCollection        = "events"
	announcementsCollection = "announcements"
)

var (
	// ErrPermissionDenied is returned before any network call when the
	// current role may not edit.
	ErrPermissionDenied = errors.New("editor: permission denied")

	// ErrNotConfirmed is returned when the user declines the delete prompt.
	ErrNotConfirmed = errors.New("editor: not confirmed")

	// ErrEmptyMessage is returned for blank announcement messages.
	ErrEmptyMessage = errors.New("editor: empty message")
)

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Form is one open edit session. ReadOnly and CanDelete reflect the role
// at Open time; Submit re-checks the live role anyway.
type Form struct {
	Event     model.CalendarEvent
	IsNew     bool
	ReadOnly  bool
	CanDelete bool
	Open      bool
	Error     string
}

// Workflow performs event and announcement mutations against the document
// store on behalf of the current session.
type Workflow struct {
	store    remote.DocumentStore
	sessions *session.Store
	confirm  Confirmer
	logger   *slog.Logger
}

func NewWorkflow(store remote.DocumentStore, sessions *session.Store, confirm Confirmer, logger *slog.Logger) *Workflow {
	return &Workflow{store: store, sessions: sessions, confirm: confirm, logger: logger}
}

// Open builds a form for an existing event, or a create form seeded with
// seedDate when event is nil. Viewers get a read-only form.
func (w *Workflow) Open(event *model.CalendarEvent, seedDate string) *Form {
	canEdit := w.sessions.Role().CanEdit()

	f := &Form{
		IsNew:    event == nil,
		ReadOnly: !canEdit,
		Open:     true,
	}
	if event != nil {
		f.Event = *event
		f.CanDelete = canEdit
	} else {
		f.Event.Date = seedDate
	}
	return f
}

// Submit validates the form and writes it to the store. On success the
// form closes; on failure it stays open with Error set so the user can
// correct and retry.
func (w *Workflow) Submit(ctx context.Context, f *Form) error {
	if err := w.submit(ctx, f); err != nil {
		f.Error = err.Error()
		return err
	}
	f.Open = false
	f.Error = ""
	return nil
}

func (w *Workflow) submit(ctx context.Context, f *Form) error {
	if !w.sessions.Role().CanEdit() {
		return ErrPermissionDenied
	}
	if err := validate(f.Event); err != nil {
		return err
	}

	data := map[string]any{
		"date":        f.Event.Date,
		"start_time":  f.Event.StartTime,
		"end_time":    f.Event.EndTime,
		"location":    f.Event.Location,
		"description": f.Event.Description,
	}

	if f.Event.ID != "" {
		if err := w.store.Update(ctx, eventsCollection, f.Event.ID, data); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		w.logger.Info("event updated", "id", f.Event.ID, "date", f.Event.Date)
		return nil
	}

	id, err := w.store.Create(ctx, eventsCollection, data)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	f.Event.ID = id
	w.logger.Info("event created", "id", id, "date", f.Event.Date)
	return nil
}

// Delete removes an event after explicit confirmation.
func (w *Workflow) Delete(ctx context.Context, eventID string) error {
	if !w.sessions.Role().CanEdit() {
		return ErrPermissionDenied
	}
	if w.confirm != nil && !w.confirm.Confirm("Delete this event?") {
		return ErrNotConfirmed
	}
	if err := w.store.Delete(ctx, eventsCollection, eventID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	w.logger.Info("event deleted", "id", eventID)
	return nil
}

// PostAnnouncement appends one announcement authored by the current
// session. The timestamp is assigned by the store.
func (w *Workflow) PostAnnouncement(ctx context.Context, message string) error {
	if !w.sessions.Role().CanEdit() {
		return ErrPermissionDenied
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}

	sess := w.sessions.Session()
	data := map[string]any{
		"message":     message,
		"author_name": sess.DisplayName,
		"author_id":   sess.UserID,
		"timestamp":   remote.ServerTimestamp,
	}
	if _, err := w.store.Create(ctx, announcementsCollection, data); err != nil {
		return fmt.Errorf("post announcement: %w", err)
	}
	w.logger.Info("announcement posted", "author", sess.UserID)
	return nil
}

func validate(ev model.CalendarEvent) error {
	if _, err := time.Parse("2006-01-02", ev.Date); err != nil {
		return fmt.Errorf("invalid date %q", ev.Date)
	}
	for _, v := range []string{ev.StartTime, ev.EndTime} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("invalid time %q", v)
		}
	}
	if ev.EndTime != "" && ev.StartTime == "" {
		return errors.New("end time without start time")
	}
	return nil
}
