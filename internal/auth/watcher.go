package auth

import (
	"context"
	"log/slog"

	"exocal/internal/remote"
)

// Watcher drives session and navigation state from the auth provider's
// push notifications. It has two states, signed out and signed in; every
// provider notification re-derives both the role (via the Resolver) and
// the navigation side effect. No other component navigates on auth
// transitions.
type Watcher struct {
	resolver *Resolver
	nav      Navigator
	logger   *slog.Logger
}

func NewWatcher(resolver *Resolver, nav Navigator, logger *slog.Logger) *Watcher {
	return &Watcher{resolver: resolver, nav: nav, logger: logger}
}

// Watch subscribes to the provider's state changes. The returned cancel
// func detaches the watcher.
func (w *Watcher) Watch(provider remote.AuthProvider) func() {
	return provider.OnStateChange(w.handle)
}

// handle processes one auth transition. Repeated notifications with the
// same identity are safe: the role is re-resolved and navigation is a
// no-op when already on the target page.
func (w *Watcher) handle(ident *remote.Identity) {
	role := w.resolver.Resolve(context.Background(), ident)

	signedIn := ident != nil
	if signedIn {
		w.logger.Info("auth state: signed in", "uid", ident.UID, "role", role.String())
	} else {
		w.logger.Info("auth state: signed out")
	}

	if target, ok := NavigationTarget(signedIn, w.nav.CurrentPage()); ok {
		w.nav.Navigate(target)
	}
}
