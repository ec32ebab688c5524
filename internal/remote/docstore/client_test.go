package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"exocal/internal/remote"
)

// fakeStore is an in-process document store speaking the wire protocol,
// backing one WebSocket connection at a time.
type fakeStore struct {
	mu     sync.Mutex
	nextID int
	docs   map[string][]wireDoc // by collection
	subs   map[string]remote.Query
	conn   *ws.Conn
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs: make(map[string][]wireDoc),
		subs: make(map[string]remote.Query),
	}
}

func (s *fakeStore) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	ctx := context.Background()
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			continue
		}
		s.dispatch(ctx, conn, f)
	}
}

func (s *fakeStore) dispatch(ctx context.Context, conn *ws.Conn, f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := frame{Op: opResult, ReqID: f.ReqID}
	switch f.Op {
	case opSubscribe:
		s.subs[f.SubID] = *f.Query
		s.send(ctx, conn, reply)
		s.send(ctx, conn, frame{Op: opSnapshot, SubID: f.SubID, Docs: s.matching(*f.Query)})
		return
	case opUnsubscribe:
		delete(s.subs, f.SubID)
	case opGet:
		for _, d := range s.docs[f.Collection] {
			if d.ID == f.DocID {
				doc := d
				reply.Doc = &doc
				break
			}
		}
	case opCreate:
		s.nextID++
		id := fmt.Sprintf("doc-%d", s.nextID)
		data := s.fillTimestamps(f.Data)
		s.docs[f.Collection] = append(s.docs[f.Collection], wireDoc{ID: id, Data: data})
		reply.DocID = id
		defer s.push(ctx, conn, f.Collection)
	case opUpdate:
		found := false
		for i, d := range s.docs[f.Collection] {
			if d.ID == f.DocID {
				s.docs[f.Collection][i].Data = s.fillTimestamps(f.Data)
				found = true
				break
			}
		}
		if !found {
			reply.Error = "no such document"
		}
		defer s.push(ctx, conn, f.Collection)
	case opDelete:
		kept := s.docs[f.Collection][:0]
		for _, d := range s.docs[f.Collection] {
			if d.ID != f.DocID {
				kept = append(kept, d)
			}
		}
		s.docs[f.Collection] = kept
		defer s.push(ctx, conn, f.Collection)
	}
	s.send(ctx, conn, reply)
}

func (s *fakeStore) fillTimestamps(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if m, ok := v.(map[string]any); ok {
			if _, ts := m[serverTimestampKey]; ts {
				out[k] = time.Now().UTC().Format(time.RFC3339)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// push re-sends snapshots to every subscription on the collection.
// Caller holds mu.
func (s *fakeStore) push(ctx context.Context, conn *ws.Conn, collection string) {
	for subID, q := range s.subs {
		if q.Collection != collection {
			continue
		}
		s.send(ctx, conn, frame{Op: opSnapshot, SubID: subID, Docs: s.matching(q)})
	}
}

func (s *fakeStore) matching(q remote.Query) []wireDoc {
	var out []wireDoc
	for _, d := range s.docs[q.Collection] {
		if q.Field != "" {
			v, _ := d.Data[q.Field].(string)
			if (q.Start != "" && v < q.Start) || (q.End != "" && v > q.End) {
				continue
			}
		}
		out = append(out, d)
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := out[i].Data[q.OrderBy].(string)
			b, _ := out[j].Data[q.OrderBy].(string)
			if q.Descending {
				return a > b
			}
			return a < b
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *fakeStore) send(ctx context.Context, conn *ws.Conn, f frame) {
	payload, _ := json.Marshal(f)
	conn.Write(ctx, ws.MessageText, payload)
}

func dialFake(t *testing.T) (*Client, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	srv := httptest.NewServer(http.HandlerFunc(store.handler))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, "tok", slog.Default())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCreateAndGet(t *testing.T) {
	client, _ := dialFake(t)
	ctx := context.Background()

	id, err := client.Create(ctx, "events", map[string]any{"date": "2026-03-05", "description": "Potluck"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected server-assigned id")
	}

	doc, err := client.Get(ctx, "events", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc == nil || doc.Str("description") != "Potluck" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestGetMissingDocument(t *testing.T) {
	client, _ := dialFake(t)

	doc, err := client.Get(context.Background(), "events", "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for missing doc, got %+v", doc)
	}
}

func TestUpdateMissingDocumentFails(t *testing.T) {
	client, _ := dialFake(t)

	if err := client.Update(context.Background(), "events", "nope", map[string]any{"location": "Hall"}); err == nil {
		t.Fatal("expected error for update of missing doc")
	}
}

func TestSubscribeReceivesInitialAndPushedSnapshots(t *testing.T) {
	client, _ := dialFake(t)
	ctx := context.Background()

	client.Create(ctx, "events", map[string]any{"date": "2026-03-05"})

	var mu sync.Mutex
	var snaps []remote.Snapshot
	cancel, err := client.Subscribe(ctx, remote.Query{
		Collection: "events",
		Field:      "date",
		Start:      "2026-03-01",
		End:        "2026-03-31",
		OrderBy:    "date",
	}, func(s remote.Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	waitFor(t, "initial snapshot", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) >= 1
	})

	// An out-of-range document must not appear.
	client.Create(ctx, "events", map[string]any{"date": "2026-04-01"})
	// An in-range one pushes a new snapshot.
	client.Create(ctx, "events", map[string]any{"date": "2026-03-10"})

	waitFor(t, "pushed snapshot with two docs", func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := snaps[len(snaps)-1]
		return len(last.Docs) == 2
	})

	mu.Lock()
	last := snaps[len(snaps)-1]
	mu.Unlock()
	if last.Docs[0].Str("date") != "2026-03-05" || last.Docs[1].Str("date") != "2026-03-10" {
		t.Errorf("snapshot order: %v, %v", last.Docs[0].Data, last.Docs[1].Data)
	}
}

func TestCancelStopsDeliveries(t *testing.T) {
	client, _ := dialFake(t)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	cancel, err := client.Subscribe(ctx, remote.Query{Collection: "events"}, func(remote.Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitFor(t, "initial snapshot", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	cancel()
	client.Create(ctx, "events", map[string]any{"date": "2026-03-05"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("deliveries after cancel = %d, want 1", count)
	}
}

func TestServerTimestampSentinel(t *testing.T) {
	client, _ := dialFake(t)
	ctx := context.Background()

	id, err := client.Create(ctx, "announcements", map[string]any{
		"message":   "hello",
		"timestamp": remote.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := client.Get(ctx, "announcements", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Time("timestamp").IsZero() {
		t.Errorf("timestamp not assigned by server: %v", doc.Data)
	}
}

func TestSubscriptionErrorAfterConnectionLoss(t *testing.T) {
	client, _ := dialFake(t)

	errCh := make(chan error, 1)
	_, err := client.Subscribe(context.Background(), remote.Query{Collection: "events"},
		func(remote.Snapshot) {},
		func(err error) { errCh <- err })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	client.Close()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never saw the connection loss")
	}
}
