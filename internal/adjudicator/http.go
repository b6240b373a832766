package adjudicator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout bounds one engine call. A timeout is surfaced as an
	// error for the caller's backoff accounting, never a silent hang.
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps the response body. Map renders embed a full
	// SVG and run large, so the allowance is generous.
	maxResponseBytes = 16 << 20
)

// request is the engine's single-endpoint envelope.
type request struct {
	Op          string              `json:"op"`
	EngineState json.RawMessage     `json:"game_state,omitempty"`
	Orders      map[string][]string `json:"orders,omitempty"`
	Render      bool                `json:"render,omitempty"`
}

// response is the engine's envelope: ok with a result, or an error string.
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// HTTPClient talks to the adjudication engine over HTTP.
type HTTPClient struct {
	url    string
	client *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// NewHTTPClient creates a client for the engine endpoint.
func NewHTTPClient(url string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewGame asks the engine for a fresh standard opening position.
func (c *HTTPClient) NewGame(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.call(ctx, request{Op: "new_game"}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Process submits orders and adjudicates the current phase.
func (c *HTTPClient) Process(ctx context.Context, engineState json.RawMessage, orders map[string][]string, render bool) (*Snapshot, error) {
	var snap Snapshot
	req := request{Op: "set_orders_and_process", EngineState: engineState, Orders: orders, Render: render}
	if err := c.call(ctx, req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// PossibleOrders lists legal orders for the current phase.
func (c *HTTPClient) PossibleOrders(ctx context.Context, engineState json.RawMessage) (*PossibleOrders, error) {
	var po PossibleOrders
	if err := c.call(ctx, request{Op: "get_possible", EngineState: engineState}, &po); err != nil {
		return nil, err
	}
	return &po, nil
}

// RenderMap renders the position as SVG.
func (c *HTTPClient) RenderMap(ctx context.Context, engineState json.RawMessage) (*RenderedMap, error) {
	var rm RenderedMap
	if err := c.call(ctx, request{Op: "render_map", EngineState: engineState}, &rm); err != nil {
		return nil, err
	}
	return &rm, nil
}

// call posts one envelope and decodes the result into out.
func (c *HTTPClient) call(ctx context.Context, req request, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal engine request: %w", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("engine %s: %w", req.Op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("engine %s: read response: %w", req.Op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine %s: status %d", req.Op, resp.StatusCode)
	}

	var env response
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("engine %s: decode envelope: %w", req.Op, err)
	}
	if !env.OK {
		return fmt.Errorf("engine %s: %s", req.Op, env.Error)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("engine %s: decode result: %w", req.Op, err)
	}

	log.Debug().Str("op", req.Op).Dur("elapsed", time.Since(start)).
		Int("responseBytes", len(data)).Msg("Engine call completed")
	return nil
}
