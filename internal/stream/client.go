package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"token-ledger/internal/domain"
)

// ClientConfig configures WebSocket client behavior.
type ClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Buffer is the capacity of each subscription channel.
	Buffer int
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		Buffer:           1024,
	}
}

// ErrClientClosed is returned by calls on a closed client.
var ErrClientClosed = errors.New("stream client closed")

// Client follows a Hub over WebSocket.
type Client struct {
	config ClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex // serializes writes
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to channel
	subs   map[int64]chan domain.Event
	subsMu sync.RWMutex

	// pending maps request ID to the channel waiting for its response
	pending   map[uint64]chan wsResponse
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects to a hub endpoint (ws:// or wss://).
func Dial(ctx context.Context, endpoint string, config *ClientConfig) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Client{
		config:  cfg,
		conn:    conn,
		subs:    make(map[int64]chan domain.Event),
		pending: make(map[uint64]chan wsResponse),
		done:    make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Subscribe registers filter on the hub and returns the channel of matching
// events. The channel is closed when the client closes or the connection drops.
func (c *Client) Subscribe(ctx context.Context, filter Filter) (<-chan domain.Event, error) {
	params, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	resp, err := c.call(ctx, MethodSubscribe, params)
	if err != nil {
		return nil, err
	}

	var subID int64
	if err := json.Unmarshal(resp.Result, &subID); err != nil {
		return nil, fmt.Errorf("decode subscription id: %w", err)
	}

	ch := make(chan domain.Event, c.config.Buffer)
	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	return ch, nil
}

// call sends one request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (wsResponse, error) {
	if c.closed.Load() {
		return wsResponse{}, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{JSONRPC: "2.0", ID: reqID, Method: method}
	if params != nil {
		req.Params = []json.RawMessage{params}
	}

	respCh := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respCh
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		forget()
		return wsResponse{}, fmt.Errorf("write %s: %w", method, err)
	}

	timeout := time.NewTimer(c.config.SubscribeTimeout)
	defer timeout.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return wsResponse{}, ErrClientClosed
		}
		if resp.Error != nil {
			return wsResponse{}, fmt.Errorf("%s failed: code=%d msg=%s", method, resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-timeout.C:
		forget()
		return wsResponse{}, fmt.Errorf("%s timeout after %s", method, c.config.SubscribeTimeout)
	case <-c.done:
		return wsResponse{}, ErrClientClosed
	case <-ctx.Done():
		forget()
		return wsResponse{}, ctx.Err()
	}
}

// Close closes the WebSocket connection and every subscription channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	return nil
}

// readLoop reads messages and dispatches them until the connection fails.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				go c.Close()
			}
			return
		}
		c.handleMessage(message)
	}
}

// handleMessage routes a response to its caller or a notification to its subscriber.
func (c *Client) handleMessage(message []byte) {
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == MethodNotification {
		c.handleNotification(&notif)
		return
	}

	var resp wsResponse
	if err := json.Unmarshal(message, &resp); err != nil || resp.ID == 0 {
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- resp
	}
}

// handleNotification blocks until the subscriber takes the event. The hub
// disconnects this client when it falls too far behind.
func (c *Client) handleNotification(notif *wsNotification) {
	if notif.Params == nil || notif.Params.Result == nil {
		return
	}

	c.subsMu.RLock()
	ch, ok := c.subs[notif.Params.Subscription]
	c.subsMu.RUnlock()

	if ok {
		select {
		case ch <- *notif.Params.Result:
		case <-c.done:
		}
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			// A failed ping is noticed by the read loop.
			_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
		}
	}
}
