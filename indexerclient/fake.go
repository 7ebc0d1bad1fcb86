package indexerclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// Fake is an in-memory Transport for tests, grounded on the teacher's
// NoOpLiquidityManager pattern (blockchain/shell_state.go): a no-op
// stand-in for an external collaborator, injected in place of a real
// network client so higher-level components can be exercised in
// isolation. Unlike NoOpLiquidityManager, Fake is not a no-op — it
// replays a scripted record feed per address, since the end-to-end
// scenarios of spec.md §8 need an indexer that actually produces data.
type Fake struct {
	mu      sync.Mutex
	records map[string][]UpdateRecord // address -> ordered feed
	live    map[string]chan UpdateRecord
}

// NewFake returns an empty Fake transport.
func NewFake() *Fake {
	return &Fake{
		records: make(map[string][]UpdateRecord),
		live:    make(map[string]chan UpdateRecord),
	}
}

// Seed appends records to address's scripted feed, available to any
// subscription opened from cursor 0 as backfill.
func (f *Fake) Seed(address string, records ...UpdateRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[address] = append(f.records[address], records...)
}

// Push delivers a record directly to address's live subscribers, as if
// it had just arrived from the indexer, without adding it to the
// backfill log (use Seed for records a fresh subscription should replay).
func (f *Fake) Push(address string, record UpdateRecord) {
	f.mu.Lock()
	ch, ok := f.live[address]
	f.mu.Unlock()
	if ok {
		ch <- record
	}
}

// Request always reports success: the end-to-end scenarios in spec.md §8
// exercise submission through the subscription feed's echoes, not through
// any particular request/response payload, so Fake accepts whatever it is
// asked to submit the same way the teacher's NoOpLiquidityManager accepts
// any call without modeling the real collaborator's decision logic.
func (f *Fake) Request(_ context.Context, _ string, _ map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{"submitTransaction":"ok"}`), nil
}

// OpenSubscription returns a fakeSubscription that first replays every
// seeded record with id > fromCursor, then forwards whatever is later
// pushed to address.
func (f *Fake) OpenSubscription(_ context.Context, address string, fromCursor uint64) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var backlog []UpdateRecord
	for _, r := range f.records[address] {
		if r.Kind == KindTransaction && r.ID <= fromCursor {
			continue
		}
		if r.Kind == KindProgress && r.LastID <= fromCursor {
			continue
		}
		backlog = append(backlog, r)
	}

	ch := make(chan UpdateRecord, 64)
	f.live[address] = ch

	return &fakeSubscription{fake: f, address: address, backlog: backlog, live: ch}, nil
}

type fakeSubscription struct {
	fake    *Fake
	address string
	backlog []UpdateRecord
	live    chan UpdateRecord
	closed  bool
}

func (s *fakeSubscription) Next(ctx context.Context) (UpdateRecord, error) {
	if len(s.backlog) > 0 {
		r := s.backlog[0]
		s.backlog = s.backlog[1:]
		return r, nil
	}
	select {
	case <-ctx.Done():
		return UpdateRecord{}, ctx.Err()
	case r, ok := <-s.live:
		if !ok {
			return UpdateRecord{}, walleterr.ErrNotConnected
		}
		return r, nil
	}
}

func (s *fakeSubscription) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.fake.mu.Lock()
	delete(s.fake.live, s.address)
	s.fake.mu.Unlock()
	return nil
}
