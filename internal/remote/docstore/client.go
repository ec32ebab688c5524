// Package docstore implements remote.DocumentStore over the hosted store's
// WebSocket stream: request/response frames for mutations and lookups,
// server-pushed snapshot frames for standing subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"

	"exocal/internal/remote"
)

const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opGet         = "get"
	opCreate      = "create"
	opUpdate      = "update"
	opDelete      = "delete"
	opResult      = "result"
	opSnapshot    = "snapshot"
	opSubError    = "sub_error"

	pingInterval   = 30 * time.Second
	requestTimeout = 15 * time.Second
)

// ErrClosed is returned for operations on a client whose connection is gone.
var ErrClosed = errors.New("docstore: connection closed")

// serverTimestampKey marks a field the server fills with its clock.
const serverTimestampKey = "__server_ts__"

type wireDoc struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type frame struct {
	Op         string         `json:"op"`
	ReqID      string         `json:"req_id,omitempty"`
	SubID      string         `json:"sub_id,omitempty"`
	Collection string         `json:"collection,omitempty"`
	DocID      string         `json:"doc_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Query      *remote.Query  `json:"query,omitempty"`
	Doc        *wireDoc       `json:"doc,omitempty"`
	Docs       []wireDoc      `json:"docs,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type subscription struct {
	onSnapshot func(remote.Snapshot)
	onError    func(error)
}

// Client is a connected document-store session. All exported methods are
// safe for concurrent use; snapshot callbacks run on the read-pump
// goroutine.
type Client struct {
	conn   *ws.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan frame
	subs    map[string]subscription
	closed  bool

	done chan struct{}
}

// Dial connects to the store endpoint, authenticating with the given ID
// token, and starts the read pump.
func Dial(ctx context.Context, url, idToken string, logger *slog.Logger) (*Client, error) {
	conn, _, err := ws.Dial(ctx, url+"?token="+idToken, nil)
	if err != nil {
		return nil, fmt.Errorf("dial document store: %w", err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan frame),
		subs:    make(map[string]subscription),
		done:    make(chan struct{}),
	}

	go c.readPump()
	go c.pingLoop()

	return c, nil
}

// Close tears down the connection. Standing subscriptions receive ErrClosed.
func (c *Client) Close() error {
	err := c.conn.Close(ws.StatusNormalClosure, "client closing")
	c.fail(ErrClosed)
	return err
}

// Get fetches one document by id, or nil when it does not exist.
func (c *Client) Get(ctx context.Context, collection, id string) (*remote.Document, error) {
	resp, err := c.request(ctx, frame{Op: opGet, Collection: collection, DocID: id})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if resp.Doc == nil {
		return nil, nil
	}
	doc := docFromWire(*resp.Doc)
	return &doc, nil
}

// Create inserts a document and returns the server-assigned id.
func (c *Client) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	resp, err := c.request(ctx, frame{Op: opCreate, Collection: collection, Data: encodeData(data)})
	if err != nil {
		return "", fmt.Errorf("create in %s: %w", collection, err)
	}
	return resp.DocID, nil
}

// Update overwrites the named fields of an existing document.
func (c *Client) Update(ctx context.Context, collection, id string, data map[string]any) error {
	if _, err := c.request(ctx, frame{Op: opUpdate, Collection: collection, DocID: id, Data: encodeData(data)}); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document by id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if _, err := c.request(ctx, frame{Op: opDelete, Collection: collection, DocID: id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Subscribe opens a standing query. The server pushes a snapshot for the
// initial result set and after every matching change. Cancel is best-effort
// on the wire; the local handler is removed immediately.
func (c *Client) Subscribe(ctx context.Context, q remote.Query, onSnapshot func(remote.Snapshot), onError func(error)) (func(), error) {
	subID := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.subs[subID] = subscription{onSnapshot: onSnapshot, onError: onError}
	c.mu.Unlock()

	if _, err := c.request(ctx, frame{Op: opSubscribe, SubID: subID, Query: &q}); err != nil {
		c.mu.Lock()
		delete(c.subs, subID)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", q.Collection, err)
	}

	cancel := func() {
		c.mu.Lock()
		_, active := c.subs[subID]
		delete(c.subs, subID)
		closed := c.closed
		c.mu.Unlock()
		if !active || closed {
			return
		}

		ctx, stop := context.WithTimeout(context.Background(), requestTimeout)
		defer stop()
		if _, err := c.request(ctx, frame{Op: opUnsubscribe, SubID: subID}); err != nil {
			c.logger.Debug("unsubscribe", "sub_id", subID, "error", err)
		}
	}
	return cancel, nil
}

func (c *Client) request(ctx context.Context, f frame) (frame, error) {
	f.ReqID = uuid.NewString()
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return frame{}, ErrClosed
	}
	c.pending[f.ReqID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ReqID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, f); err != nil {
		return frame{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return frame{}, ErrClosed
		}
		if resp.Error != "" {
			return frame{}, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-c.done:
		return frame{}, ErrClosed
	}
}

func (c *Client) write(ctx context.Context, f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, ws.MessageText, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readPump dispatches incoming frames until the connection drops, then
// fails all pending requests and subscriptions.
func (c *Client) readPump() {
	ctx := context.Background()
	for {
		_, payload, err := c.conn.Read(ctx)
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}

		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			c.logger.Error("malformed store frame", "error", err)
			continue
		}

		switch f.Op {
		case opResult:
			c.mu.Lock()
			ch, ok := c.pending[f.ReqID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case opSnapshot:
			c.mu.Lock()
			sub, ok := c.subs[f.SubID]
			c.mu.Unlock()
			if ok {
				docs := make([]remote.Document, 0, len(f.Docs))
				for _, wd := range f.Docs {
					docs = append(docs, docFromWire(wd))
				}
				sub.onSnapshot(remote.Snapshot{Docs: docs})
			}
		case opSubError:
			c.mu.Lock()
			sub, ok := c.subs[f.SubID]
			c.mu.Unlock()
			if ok && sub.onError != nil {
				sub.onError(errors.New(f.Error))
			}
		default:
			c.logger.Debug("unhandled store frame", "op", f.Op)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// fail marks the client closed and reports err to every pending request and
// standing subscription exactly once.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	subs := c.subs
	c.pending = make(map[string]chan frame)
	c.subs = make(map[string]subscription)
	c.mu.Unlock()

	// Pending requests are unblocked by the done channel.
	for _, sub := range subs {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// encodeData copies data, replacing the ServerTimestamp sentinel with its
// wire marker.
func encodeData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == remote.ServerTimestamp {
			out[k] = map[string]any{serverTimestampKey: true}
			continue
		}
		out[k] = v
	}
	return out
}

func docFromWire(wd wireDoc) remote.Document {
	return remote.Document{ID: wd.ID, Data: wd.Data}
}
