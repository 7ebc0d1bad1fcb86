package indexerclient

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// unshieldedTransactionsQuery is the GraphQL subscription document for
// spec.md §6's unshieldedTransactions(address, transactionId?) feed.
const unshieldedTransactionsQuery = `
subscription UnshieldedTransactions($address: String!, $transactionId: Int) {
  unshieldedTransactions(address: $address, transactionId: $transactionId) {
    __typename
    ... on TransactionUpdate {
      id
      txHash
      blockHeight
      timestamp
      finalized
      forkOf
      createdUtxos { outputIndex owner token value }
      spentUtxoRefs { intentHash outputIndex }
    }
    ... on ProgressUpdate {
      lastId
    }
  }
}`

type wireCreatedUTXO struct {
	OutputIndex uint32 `json:"outputIndex"`
	Owner       string `json:"owner"`
	Token       string `json:"token"`
	Value       uint64 `json:"value"`
}

type wireSpentRef struct {
	IntentHash  string `json:"intentHash"`
	OutputIndex uint32 `json:"outputIndex"`
}

type wireUpdate struct {
	TypeName      string            `json:"__typename"`
	ID            uint64            `json:"id"`
	TxHash        string            `json:"txHash"`
	BlockHeight   uint64            `json:"blockHeight"`
	Timestamp     int64             `json:"timestamp"`
	Finalized     bool              `json:"finalized"`
	ForkOf        *uint64           `json:"forkOf,omitempty"`
	CreatedUTXOs  []wireCreatedUTXO `json:"createdUtxos"`
	SpentUTXORefs []wireSpentRef    `json:"spentUtxoRefs"`
	LastID        uint64            `json:"lastId"`
}

func decodeUpdate(payload json.RawMessage) (UpdateRecord, error) {
	var w wireUpdate
	if err := json.Unmarshal(payload, &w); err != nil {
		return UpdateRecord{}, walleterr.ErrInvalidResponse
	}

	if w.TypeName == "ProgressUpdate" {
		return UpdateRecord{Kind: KindProgress, LastID: w.LastID}, nil
	}

	rec := UpdateRecord{
		Kind:        KindTransaction,
		ID:          w.ID,
		BlockHeight: w.BlockHeight,
		Timestamp:   w.Timestamp,
		Finalized:   w.Finalized,
		ForkOf:      w.ForkOf,
	}
	if raw, err := hex.DecodeString(w.TxHash); err == nil {
		copy(rec.TxHash[:], raw)
	}
	for _, c := range w.CreatedUTXOs {
		var token [32]byte
		if raw, err := hex.DecodeString(c.Token); err == nil {
			copy(token[:], raw)
		}
		rec.CreatedUTXOs = append(rec.CreatedUTXOs, CreatedUTXO{
			OutputIndex: c.OutputIndex,
			Owner:       c.Owner,
			Token:       token,
			Value:       c.Value,
		})
	}
	for _, s := range w.SpentUTXORefs {
		var hash [32]byte
		if raw, err := hex.DecodeString(s.IntentHash); err == nil {
			copy(hash[:], raw)
		}
		rec.SpentUTXORefs = append(rec.SpentUTXORefs, SpentRef{IntentHash: hash, OutputIndex: s.OutputIndex})
	}
	return rec, nil
}

// clientSubscription adapts a Stream subscription id into the
// indexerclient.Subscription interface.
type clientSubscription struct {
	stream *Stream
	id     string
}

// OpenSubscription implements Transport by dialing a fresh Stream,
// handshaking, and issuing the unshieldedTransactions subscription from
// fromCursor (spec.md §4.6 replay: "the server backfills missed records
// before streaming live").
func (c *Client) OpenSubscription(ctx context.Context, address string, fromCursor uint64) (Subscription, error) {
	stream, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}

	variables := map[string]any{"address": address}
	if fromCursor > 0 {
		variables["transactionId"] = fromCursor
	}

	id, err := stream.Subscribe(unshieldedTransactionsQuery, variables)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return &clientSubscription{stream: stream, id: id}, nil
}

func (s *clientSubscription) Next(ctx context.Context) (UpdateRecord, error) {
	type result struct {
		rec UpdateRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		env, err := s.stream.Next()
		if err != nil {
			done <- result{err: err}
			return
		}
		switch env.Type {
		case TypeNext:
			rec, err := decodeUpdate(env.Payload)
			done <- result{rec: rec, err: err}
		case TypeError:
			done <- result{err: &walleterr.RemoteError{Code: "subscription_error", Message: string(env.Payload)}}
		case TypeComplete:
			done <- result{err: walleterr.ErrNotConnected}
		default:
			done <- result{err: walleterr.ErrInvalidResponse}
		}
	}()

	select {
	case <-ctx.Done():
		return UpdateRecord{}, ctx.Err()
	case r := <-done:
		return r.rec, r.err
	}
}

func (s *clientSubscription) Close() error {
	_ = s.stream.Unsubscribe(s.id)
	return s.stream.Close()
}
