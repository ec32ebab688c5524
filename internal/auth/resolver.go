package auth

import (
	"context"
	"log/slog"
	"time"

	"exocal/internal/model"
	"exocal/internal/remote"
	"exocal/internal/session"
)

const (
	usersCollection = "users"
	accessField     = "access"

	lookupTimeout = 10 * time.Second
)

// StatusSink receives non-blocking, user-visible notices such as a role
// lookup falling back to viewer.
type StatusSink interface {
	Notice(msg string)
}

// Resolver derives a role for an authenticated identity from the user's
// document in the remote store and records it in the session store. It is
// one of exactly two session writer paths (the other being explicit
// sign-out).
type Resolver struct {
	sessions *session.Store
	store    remote.DocumentStore
	status   StatusSink
	logger   *slog.Logger
}

func NewResolver(sessions *session.Store, store remote.DocumentStore, status StatusSink, logger *slog.Logger) *Resolver {
	return &Resolver{sessions: sessions, store: store, status: status, logger: logger}
}

// Resolve maps an identity to a role. A nil identity (signed out) clears
// the session. Lookup failures degrade to viewer rather than failing: the
// session is always left fully written (user id and role together) and
// Resolve never returns an error.
func (r *Resolver) Resolve(ctx context.Context, ident *remote.Identity) model.Role {
	if ident == nil {
		r.sessions.Clear()
		return model.RoleUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	role := model.RoleViewer
	doc, err := r.store.Get(ctx, usersCollection, ident.UID)
	switch {
	case err != nil:
		r.logger.Error("role lookup failed, defaulting to viewer", "uid", ident.UID, "error", err)
		if r.status != nil {
			r.status.Notice("Could not load your access level; continuing as viewer.")
		}
	case doc == nil:
		r.logger.Warn("no user document, defaulting to viewer", "uid", ident.UID)
	default:
		role = model.ParseRole(doc.Str(accessField))
	}

	r.sessions.Set(ident.UID, role, ident.DisplayName)
	return role
}
