// Package indexerclient implements the wallet core's two channels to the
// Midnight indexer (spec.md C5): a JSON request/response channel over
// HTTPS with truncated exponential backoff, and a streaming channel over
// a WebSocket upgrade speaking the graphql-transport-ws sub-protocol.
//
// The streaming channel is built on github.com/btcsuite/websocket, the
// teacher's own fork of gorilla/websocket, declared in its go.mod for
// exactly this kind of notification-socket duty in btcd-family nodes but
// never wired into any of its own source files — this package is the
// first concrete user of that dependency. The request channel is plain
// net/http + encoding/json (see DESIGN.md for why no third-party HTTP
// client is used).
package indexerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/midnight-ntwrk/wallet-core/chaincfg"
	"github.com/midnight-ntwrk/wallet-core/walleterr"
)

var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// RequestPath and StreamPath are the indexer's two endpoints (spec.md §6).
const (
	RequestPath = "/api/v3/graphql"
	StreamPath  = "/api/v3/graphql/ws"
)

// GraphQLSubProtocol is the streaming channel's required sub-protocol.
const GraphQLSubProtocol = "graphql-transport-ws"

// BackoffConfig controls the truncated exponential backoff used by both
// channels on retry.
type BackoffConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultBackoff matches the teacher family's typical reconnect tuning:
// a one-second base doubling up to thirty seconds.
var DefaultBackoff = BackoffConfig{
	BaseDelay:  time.Second,
	MaxDelay:   30 * time.Second,
	MaxRetries: 5,
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.BaseDelay << attempt
	if d > b.MaxDelay || d <= 0 {
		d = b.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d/2 + jitter
}

// request/response wire types for the HTTPS channel (spec.md §6).
type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

// Client is the wallet core's handle to one indexer deployment.
type Client struct {
	baseURL string
	wsURL   string
	http    *http.Client
	backoff BackoffConfig
}

// New returns a Client targeting the indexer at params' configured base
// URL (the scheme is rewritten from http(s) to ws(s) for the streaming
// endpoint).
func New(params *chaincfg.Params) *Client {
	return &Client{
		baseURL: params.IndexerBaseURL,
		wsURL:   toWebsocketURL(params.IndexerBaseURL),
		http:    &http.Client{Timeout: 30 * time.Second},
		backoff: DefaultBackoff,
	}
}

func toWebsocketURL(base string) string {
	switch {
	case len(base) >= 5 && base[:5] == "https":
		return "wss" + base[5:]
	case len(base) >= 4 && base[:4] == "http":
		return "ws" + base[4:]
	default:
		return base
	}
}

// Request issues query/variables over the HTTPS request channel and
// returns the raw `data` payload, retrying transport failures with
// truncated exponential backoff up to the configured attempt cap
// (spec.md §4.5).
func (c *Client) Request(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff.delay(attempt - 1)):
			}
		}

		data, err := c.doRequest(ctx, body)
		if err == nil {
			return data, nil
		}
		lastErr = err
		log.Debugf("indexerclient: request attempt %d failed: %v", attempt, err)
	}
	return nil, fmt.Errorf("indexerclient: request failed after %d attempts: %w", c.backoff.MaxRetries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RequestPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, walleterr.ErrNotConnected
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", walleterr.ErrInvalidResponse, resp.StatusCode)
	}

	var out gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, walleterr.ErrInvalidResponse
	}
	if len(out.Errors) > 0 {
		return nil, &walleterr.RemoteError{Code: "graphql_error", Message: out.Errors[0].Message}
	}
	return out.Data, nil
}
