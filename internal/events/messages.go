package events

import "context"

// Event types dispatched by the collection engine.
const (
	// TypeNotification carries a user-facing notification.
	TypeNotification = "collection:notification"

	// TypeActiveCollectionChanged fires when the active collection switches.
	// The header indicator subscribes to this instead of being poked directly.
	TypeActiveCollectionChanged = "collection:active-changed"

	// TypeIndexRefreshed fires after the collection index absorbed server state.
	TypeIndexRefreshed = "collection:index-refreshed"
)

// Level classifies a notification for display purposes.
type Level string

// Notification levels.
const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Notification is a user-facing message produced by a mutation intent.
// Exactly one is emitted per intent, in the same tick as the intent itself.
type Notification struct {
	Level        Level
	Message      string
	CollectionID int64
	CardID       string
	Quantity     int
}

// ActiveCollectionChanged announces a new active collection.
type ActiveCollectionChanged struct {
	CollectionID int64
	Name         string
}

// IndexRefreshed announces that the index was rebuilt from the remote store.
type IndexRefreshed struct {
	EntryCount int
}

// NewNotification builds a notification event.
func NewNotification(ctx context.Context, n Notification) Event {
	return Event{Type: TypeNotification, Data: n, Context: ctx}
}

// NewActiveCollectionChanged builds an active-collection-changed event.
func NewActiveCollectionChanged(ctx context.Context, c ActiveCollectionChanged) Event {
	return Event{Type: TypeActiveCollectionChanged, Data: c, Context: ctx}
}

// NewIndexRefreshed builds an index-refreshed event.
func NewIndexRefreshed(ctx context.Context, r IndexRefreshed) Event {
	return Event{Type: TypeIndexRefreshed, Data: r, Context: ctx}
}
