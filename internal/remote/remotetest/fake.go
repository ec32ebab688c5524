// Package remotetest provides in-memory fakes of the remote collaborators
// for package tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"exocal/internal/remote"
)

// FakeSub records one subscription opened against a FakeStore. Deliver and
// Fail can be invoked even after cancellation, simulating a late in-flight
// delivery from the wire.
type FakeSub struct {
	Query     remote.Query
	Cancelled bool

	store      *FakeStore
	onSnapshot func(remote.Snapshot)
	onError    func(error)
}

// Deliver invokes the subscription's snapshot callback with the documents
// currently matching its query.
func (s *FakeSub) Deliver() {
	s.onSnapshot(remote.Snapshot{Docs: s.store.Matching(s.Query)})
}

// Fail invokes the subscription's error callback.
func (s *FakeSub) Fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// FakeStore is an in-memory remote.DocumentStore. Mutations synchronously
// push fresh snapshots to active subscriptions on the same collection,
// unless Manual is set.
type FakeStore struct {
	// Manual suppresses automatic snapshot delivery; tests drive
	// deliveries through FakeSub.Deliver instead.
	Manual bool

	// Err, when set, is returned by every store operation.
	Err error

	mu      sync.Mutex
	nextID  int
	docs    map[string]map[string]map[string]any
	subs    []*FakeSub
	creates int
	updates int
	deletes int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{docs: make(map[string]map[string]map[string]any)}
}

// SetDoc seeds a document without triggering snapshot pushes.
func (f *FakeStore) SetDoc(collection, id string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	f.docs[collection][id] = data
}

func (f *FakeStore) Get(ctx context.Context, collection, id string) (*remote.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	data, ok := f.docs[collection][id]
	if !ok {
		return nil, nil
	}
	return &remote.Document{ID: id, Data: data}, nil
}

func (f *FakeStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	f.mu.Lock()
	if f.Err != nil {
		f.mu.Unlock()
		return "", f.Err
	}
	f.nextID++
	f.creates++
	id := fmt.Sprintf("doc-%d", f.nextID)
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	f.docs[collection][id] = data
	f.mu.Unlock()

	f.pushCollection(collection)
	return id, nil
}

func (f *FakeStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	f.mu.Lock()
	if f.Err != nil {
		f.mu.Unlock()
		return f.Err
	}
	if _, ok := f.docs[collection][id]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("no such document %s/%s", collection, id)
	}
	f.updates++
	f.docs[collection][id] = data
	f.mu.Unlock()

	f.pushCollection(collection)
	return nil
}

func (f *FakeStore) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	if f.Err != nil {
		f.mu.Unlock()
		return f.Err
	}
	f.deletes++
	delete(f.docs[collection], id)
	f.mu.Unlock()

	f.pushCollection(collection)
	return nil
}

func (f *FakeStore) Subscribe(ctx context.Context, q remote.Query, onSnapshot func(remote.Snapshot), onError func(error)) (func(), error) {
	f.mu.Lock()
	if f.Err != nil {
		f.mu.Unlock()
		return nil, f.Err
	}
	sub := &FakeSub{Query: q, store: f, onSnapshot: onSnapshot, onError: onError}
	f.subs = append(f.subs, sub)
	manual := f.Manual
	f.mu.Unlock()

	if !manual {
		sub.Deliver()
	}
	return func() {
		f.mu.Lock()
		sub.Cancelled = true
		f.mu.Unlock()
	}, nil
}

// Subs returns every subscription ever opened, cancelled ones included.
func (f *FakeStore) Subs() []*FakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSub(nil), f.subs...)
}

// ActiveSubs returns the subscriptions that have not been cancelled.
func (f *FakeStore) ActiveSubs() []*FakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FakeSub
	for _, s := range f.subs {
		if !s.Cancelled {
			out = append(out, s)
		}
	}
	return out
}

// Counts reports the number of create, update and delete calls.
func (f *FakeStore) Counts() (creates, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.deletes
}

// Matching evaluates q against the current documents.
func (f *FakeStore) Matching(q remote.Query) []remote.Document {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []remote.Document
	for id, data := range f.docs[q.Collection] {
		if q.Field != "" {
			v, _ := data[q.Field].(string)
			if (q.Start != "" && v < q.Start) || (q.End != "" && v > q.End) {
				continue
			}
		}
		out = append(out, remote.Document{ID: id, Data: data})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy == "" {
			return out[i].ID < out[j].ID
		}
		a, _ := out[i].Data[q.OrderBy].(string)
		b, _ := out[j].Data[q.OrderBy].(string)
		if q.Descending {
			return a > b
		}
		return a < b
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (f *FakeStore) pushCollection(collection string) {
	f.mu.Lock()
	manual := f.Manual
	var targets []*FakeSub
	for _, s := range f.subs {
		if !s.Cancelled && s.Query.Collection == collection {
			targets = append(targets, s)
		}
	}
	f.mu.Unlock()

	if manual {
		return
	}
	for _, s := range targets {
		s.Deliver()
	}
}

// FakeAuth is an in-memory remote.AuthProvider whose state transitions are
// driven directly by tests.
type FakeAuth struct {
	mu        sync.Mutex
	current   *remote.Identity
	listeners map[int]func(*remote.Identity)
	nextID    int
}

func NewFakeAuth() *FakeAuth {
	return &FakeAuth{listeners: make(map[int]func(*remote.Identity))}
}

func (a *FakeAuth) SignIn(ctx context.Context, email, password string) (*remote.Identity, error) {
	ident := &remote.Identity{UID: "fake-" + email, Email: email}
	a.SetState(ident)
	return ident, nil
}

func (a *FakeAuth) SignOut(ctx context.Context) error {
	a.SetState(nil)
	return nil
}

func (a *FakeAuth) SendPasswordReset(ctx context.Context, email string) error { return nil }

func (a *FakeAuth) OnStateChange(fn func(*remote.Identity)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	current := a.current
	a.mu.Unlock()

	fn(current)
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// SetState transitions the fake provider and notifies listeners, as the
// real provider does on every sign-in or sign-out.
func (a *FakeAuth) SetState(ident *remote.Identity) {
	a.mu.Lock()
	a.current = ident
	fns := make([]func(*remote.Identity), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(ident)
	}
}
