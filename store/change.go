package store

import "context"

// ChangeEvent describes one document mutation observed on the change feed.
// The feed is at-least-once: the same mutation may be redelivered, and events
// for different documents carry no ordering guarantee. Consumers must treat
// write-backs as wholesale replacement so redelivery stays idempotent.
type ChangeEvent struct {
	// ID identifies the delivery, not the mutation; redeliveries of the
	// same mutation carry distinct IDs.
	ID         string
	Collection string
	DocID      string
	Content    string
}

// Notifier is the document change feed.
type Notifier interface {
	// Subscribe returns a channel of change events. The channel is closed
	// when the notifier stops or ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan *ChangeEvent, error)

	// Publish emits a change event to all subscribers. Drivers that rely on
	// database-level notification (LISTEN/NOTIFY) publish from triggers and
	// this is a no-op.
	Publish(ctx context.Context, event *ChangeEvent)
}
