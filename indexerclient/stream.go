package indexerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/websocket"

	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

// Message types of the graphql-transport-ws envelope (spec.md §6).
const (
	TypeConnectionInit = "connection_init"
	TypeConnectionAck  = "connection_ack"
	TypeSubscribe      = "subscribe"
	TypeNext           = "next"
	TypeError          = "error"
	TypeComplete       = "complete"
	TypePing           = "ping"
	TypePong           = "pong"
)

// Envelope is the wire message of the graphql-transport-ws sub-protocol.
// Outgoing envelopes always set Type, even to its zero value, matching
// spec.md §6's "outgoing JSON MUST always include the type field"
// requirement — Type is a plain string, never `json:"type,omitempty"`.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Stream is one open connection on the streaming channel, handshaked and
// ready to carry subscriptions.
type Stream struct {
	conn *websocket.Conn

	mu     sync.Mutex
	nextID int
}

// Dial opens the WebSocket upgrade to the indexer's streaming endpoint,
// negotiates the graphql-transport-ws sub-protocol, and performs the
// connection_init / connection_ack handshake required before any
// subscription may be issued (spec.md §4.5, §6).
func (c *Client) Dial(ctx context.Context) (*Stream, error) {
	dialer := &websocket.Dialer{
		Subprotocols:     []string{GraphQLSubProtocol},
		HandshakeTimeout: 15 * time.Second,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, resp, err := dialer.Dial(c.wsURL+StreamPath, nil)
	if err != nil {
		return nil, walleterr.ErrNotConnected
	}
	if resp == nil || resp.Header.Get("Sec-WebSocket-Protocol") != GraphQLSubProtocol {
		conn.Close()
		return nil, walleterr.ErrHandshakeRejected
	}

	s := &Stream{conn: conn}
	if err := conn.WriteJSON(Envelope{Type: TypeConnectionInit}); err != nil {
		conn.Close()
		return nil, walleterr.ErrNotConnected
	}

	var ack Envelope
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, walleterr.ErrNotConnected
	}
	if ack.Type != TypeConnectionAck {
		conn.Close()
		return nil, walleterr.ErrHandshakeRejected
	}

	return s, nil
}

// Close tears down the underlying connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// Subscribe issues a subscribe message for query/variables and returns
// the subscription id the caller must use to correlate subsequent `next`
// envelopes and to later call Unsubscribe.
func (s *Stream) Subscribe(query string, variables map[string]any) (string, error) {
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("sub-%d", s.nextID)
	s.mu.Unlock()

	payload, err := json.Marshal(subscribePayload{Query: query, Variables: variables})
	if err != nil {
		return "", err
	}

	if err := s.conn.WriteJSON(Envelope{Type: TypeSubscribe, ID: id, Payload: payload}); err != nil {
		return "", walleterr.ErrNotConnected
	}
	return id, nil
}

// Unsubscribe tears down the subscription id both on the wire (a
// `complete` message) and, by returning, signals the caller to stop
// reading for that id.
func (s *Stream) Unsubscribe(id string) error {
	if err := s.conn.WriteJSON(Envelope{Type: TypeComplete, ID: id}); err != nil {
		return walleterr.ErrNotConnected
	}
	return nil
}

// Next blocks for the next envelope from the server, replying to pings
// transparently so the caller only ever observes application-level
// envelopes (next/error/complete).
func (s *Stream) Next() (Envelope, error) {
	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return Envelope{}, walleterr.ErrNotConnected
		}
		switch env.Type {
		case TypePing:
			if err := s.conn.WriteJSON(Envelope{Type: TypePong}); err != nil {
				return Envelope{}, walleterr.ErrNotConnected
			}
			continue
		case TypePong:
			continue
		default:
			return env, nil
		}
	}
}
