package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/notesense/notesense/store"
)

const notifyChannel = "document_change"

// Listener adapts Postgres LISTEN/NOTIFY into the store change feed.
// NOTIFY delivery is at-least-once from the consumer's point of view: the
// connection may drop and reconnect, and events arriving during the gap are
// not replayed, so consumers must also tolerate the occasional redelivery
// after reconnect races.
type Listener struct {
	dsn string

	mu          sync.Mutex
	listener    *pq.Listener
	subscribers []chan *store.ChangeEvent
	started     bool
	closed      bool
	stopCh      chan struct{}
}

// NewListener creates a change feed backed by a dedicated LISTEN connection.
// The connection is established lazily on first Subscribe.
func NewListener(dsn string) *Listener {
	return &Listener{
		dsn:    dsn,
		stopCh: make(chan struct{}),
	}
}

// Subscribe registers a consumer channel and starts the LISTEN loop if needed.
func (l *Listener) Subscribe(ctx context.Context) (<-chan *store.ChangeEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		ch := make(chan *store.ChangeEvent)
		close(ch)
		return ch, nil
	}

	if !l.started {
		listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Error("postgres listener event", "event", ev, "error", err)
			}
		})
		if err := listener.Listen(notifyChannel); err != nil {
			_ = listener.Close()
			return nil, err
		}
		l.listener = listener
		l.started = true
		go l.run()
	}

	ch := make(chan *store.ChangeEvent, 16)
	l.subscribers = append(l.subscribers, ch)

	go func() {
		select {
		case <-ctx.Done():
			l.unsubscribe(ch)
		case <-l.stopCh:
		}
	}()

	return ch, nil
}

// Publish is a no-op: events originate from the NOTIFY trigger installed by
// Migrate, not from application code.
func (l *Listener) Publish(_ context.Context, _ *store.ChangeEvent) {}

func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.stopCh)
	if l.listener != nil {
		_ = l.listener.Close()
	}
	for _, ch := range l.subscribers {
		close(ch)
	}
	l.subscribers = nil
}

func (l *Listener) run() {
	for {
		select {
		case <-l.stopCh:
			return
		case n, ok := <-l.listener.Notify:
			if !ok {
				return
			}
			// nil notification signals a reconnect; events during the gap
			// are lost (known consistency gap, see DESIGN.md).
			if n == nil {
				slog.Warn("postgres listener reconnected, notifications may have been missed")
				continue
			}
			event, err := decodeNotification(n.Extra)
			if err != nil {
				slog.Error("failed to decode document change notification", "error", err, "payload", n.Extra)
				continue
			}
			l.dispatch(event)
		case <-time.After(90 * time.Second):
			// Periodic liveness ping keeps the connection healthy.
			go func() { _ = l.listener.Ping() }()
		}
	}
}

func (l *Listener) dispatch(event *store.ChangeEvent) {
	l.mu.Lock()
	subscribers := make([]chan *store.ChangeEvent, len(l.subscribers))
	copy(subscribers, l.subscribers)
	l.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			// Slow consumer: drop rather than block the LISTEN loop.
			slog.Warn("dropping change event for slow subscriber",
				"collection", event.Collection, "id", event.DocID)
		}
	}
}

func (l *Listener) unsubscribe(ch chan *store.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sub := range l.subscribers {
		if sub == ch {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func decodeNotification(payload string) (*store.ChangeEvent, error) {
	var body struct {
		Collection string `json:"collection"`
		ID         string `json:"id"`
		Content    string `json:"content"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return nil, err
	}
	return &store.ChangeEvent{
		ID:         uuid.NewString(),
		Collection: body.Collection,
		DocID:      body.ID,
		Content:    body.Content,
	}, nil
}
