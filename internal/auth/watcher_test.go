package auth

import (
	"log/slog"
	"testing"

	"exocal/internal/model"
	"exocal/internal/remote"
	"exocal/internal/remote/remotetest"
)

type fakeNav struct {
	page  string
	moves []string
}

func (n *fakeNav) CurrentPage() string { return n.page }
func (n *fakeNav) Navigate(page string) {
	n.page = page
	n.moves = append(n.moves, page)
}

func newWatcherFixture(t *testing.T) (*Watcher, *remotetest.FakeStore, *fakeNav, *remotetest.FakeAuth, func() model.Role) {
	t.Helper()
	sessions := newTestSessions(t)
	store := remotetest.NewFakeStore()
	nav := &fakeNav{page: PageLogin}
	provider := remotetest.NewFakeAuth()
	w := NewWatcher(NewResolver(sessions, store, nil, slog.Default()), nav, slog.Default())
	cancel := w.Watch(provider)
	t.Cleanup(cancel)
	return w, store, nav, provider, sessions.Role
}

func TestWatcherSignInRedirectsFromLogin(t *testing.T) {
	_, store, nav, provider, role := newWatcherFixture(t)
	store.SetDoc("users", "u1", map[string]any{"access": "uploader"})

	provider.SetState(&remote.Identity{UID: "u1"})

	if role() != model.RoleUploader {
		t.Errorf("role = %q, want uploader", role())
	}
	if nav.page != PageCalendar {
		t.Errorf("page = %q, want calendar", nav.page)
	}
}

func TestWatcherSignOutRedirectsToLogin(t *testing.T) {
	_, store, nav, provider, role := newWatcherFixture(t)
	store.SetDoc("users", "u1", map[string]any{"access": "viewer"})

	provider.SetState(&remote.Identity{UID: "u1"})
	provider.SetState(nil)

	if role() != model.RoleUnauthenticated {
		t.Errorf("role = %q, want unauthenticated after sign-out", role())
	}
	if nav.page != PageLogin {
		t.Errorf("page = %q, want login", nav.page)
	}
}

func TestWatcherRepeatedNotificationsAreIdempotent(t *testing.T) {
	_, store, nav, provider, _ := newWatcherFixture(t)
	store.SetDoc("users", "u1", map[string]any{"access": "uploader"})

	ident := &remote.Identity{UID: "u1"}
	provider.SetState(ident)
	provider.SetState(ident)
	provider.SetState(ident)

	// Initial nil delivery causes no move (already on login); the first
	// sign-in navigates once; repeats must not navigate again.
	if len(nav.moves) != 1 || nav.moves[0] != PageCalendar {
		t.Errorf("moves = %v, want exactly one redirect to calendar", nav.moves)
	}
}

func TestWatcherSignedOutOnLoginPageStays(t *testing.T) {
	_, _, nav, provider, _ := newWatcherFixture(t)

	provider.SetState(nil)
	provider.SetState(nil)

	if len(nav.moves) != 0 {
		t.Errorf("moves = %v, want none while signed out on login page", nav.moves)
	}
}
