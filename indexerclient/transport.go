package indexerclient

import (
	"context"
	"encoding/json"
)

// Transport is the wallet core's abstraction over the indexer's two
// channels, satisfied both by *Client (the real implementation) and by
// Fake (an in-memory stand-in for tests). Components above C5 — C6's
// subscription session and C12's submission controller — depend on this
// interface, never on *Client directly, so a test can substitute Fake
// without touching any other component.
type Transport interface {
	Request(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
	OpenSubscription(ctx context.Context, address string, fromCursor uint64) (Subscription, error)
}

// Subscription is one open unshieldedTransactions subscription.
type Subscription interface {
	// Next blocks until the next UpdateRecord is available, the
	// subscription is closed, or ctx is done.
	Next(ctx context.Context) (UpdateRecord, error)
	Close() error
}
