// Package remote defines the contracts for the hosted collaborators this
// client consumes: the authentication service and the document store. The
// backends themselves live elsewhere; this package only fixes the shapes the
// rest of the client programs against.
package remote

import (
	"context"
	"time"
)

// Identity is an authenticated user handle issued by the auth service.
type Identity struct {
	UID          string
	Email        string
	DisplayName  string
	IDToken      string
	RefreshToken string
}

// AuthProvider is the hosted authentication service. State-change
// notifications are push-based: every sign-in, sign-out or session
// restoration delivers the new identity (nil when signed out) to all
// registered listeners.
type AuthProvider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	OnStateChange(fn func(*Identity)) (cancel func())
}

// Document is one record in a remote collection. Data values are the JSON
// scalar types plus time.Time for decoded timestamps.
type Document struct {
	ID   string
	Data map[string]any
}

// Str returns the string value stored under key, or "" when absent or not
// a string.
func (d Document) Str(key string) string {
	s, _ := d.Data[key].(string)
	return s
}

// Time returns the time value stored under key. String values are parsed as
// RFC 3339; anything else yields the zero time.
func (d Document) Time(key string) time.Time {
	switch v := d.Data[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Query selects documents from one collection, optionally restricted to a
// closed range over a single field and ordered server-side.
type Query struct {
	Collection string `json:"collection"`
	Field      string `json:"field,omitempty"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	OrderBy    string `json:"order_by,omitempty"`
	Descending bool   `json:"descending,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Snapshot is a full result set for a subscription. Every remote change
// re-delivers the whole set; consumers replace, never patch.
type Snapshot struct {
	Docs []Document
}

// ServerTimestamp is a write sentinel: the store replaces it with the
// server's clock at commit time.
var ServerTimestamp = serverTimestampSentinel{}

type serverTimestampSentinel struct{}

// DocumentStore is the hosted document database. Subscribe delivers a
// Snapshot on the initial result set and on every subsequent change until
// the returned cancel func runs or ctx is done; one in-flight delivery may
// still arrive after cancellation, so consumers guard with their own
// generation tokens. Callbacks run on the store's delivery goroutine.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (cancel func(), err error)
}
