package sqlite

import (
	"context"
	"sync"

	"github.com/notesense/notesense/store"
)

// Notifier is an in-process change feed. SQLite has no server-side NOTIFY,
// so the driver publishes an event after every content write on the same
// process, fanned out to all subscribers.
type Notifier struct {
	mu          sync.Mutex
	subscribers []chan *store.ChangeEvent
	closed      bool
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Subscribe(ctx context.Context) (<-chan *store.ChangeEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan *store.ChangeEvent, 16)
	if n.closed {
		close(ch)
		return ch, nil
	}
	n.subscribers = append(n.subscribers, ch)

	go func() {
		<-ctx.Done()
		n.unsubscribe(ch)
	}()

	return ch, nil
}

func (n *Notifier) Publish(_ context.Context, event *store.ChangeEvent) {
	n.mu.Lock()
	subscribers := make([]chan *store.ChangeEvent, len(n.subscribers))
	copy(subscribers, n.subscribers)
	n.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			// Drop rather than block the writer on a slow consumer.
		}
	}
}

func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subscribers {
		close(ch)
	}
	n.subscribers = nil
}

func (n *Notifier) unsubscribe(ch chan *store.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, sub := range n.subscribers {
		if sub == ch {
			n.subscribers = append(n.subscribers[:i], n.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}
