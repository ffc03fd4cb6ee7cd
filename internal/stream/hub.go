package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"token-ledger/internal/domain"
	"token-ledger/internal/observability"
)

// HubConfig configures the WebSocket hub.
type HubConfig struct {
	// SendBuffer is the per-connection queue length. A subscriber whose queue
	// is full is disconnected instead of stalling the ledger.
	SendBuffer int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a connection may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Hub fans committed events out to WebSocket subscribers. It implements
// ledger.EventSink and http.Handler.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu     sync.RWMutex
	peers  map[*peer]struct{}
	nextID atomic.Int64
}

// NewHub creates a hub.
func NewHub(cfg HubConfig, log zerolog.Logger) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:   log.With().Str("component", "stream_hub").Logger(),
		peers: make(map[*peer]struct{}),
	}
}

// peer is one WebSocket connection with its subscriptions.
type peer struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	// dropped is set once the hub gave up on a full queue.
	dropped atomic.Bool

	mu   sync.RWMutex
	subs map[int64]Filter
}

// Name returns the sink label.
func (h *Hub) Name() string {
	return "stream"
}

// Publish queues events for every matching subscription. It never blocks on
// slow subscribers: a connection whose queue is full is closed, so its client
// sees the disconnect instead of a gap in the feed.
func (h *Hub) Publish(_ context.Context, events []*domain.Event) error {
	type drop struct {
		p        *peer
		sequence uint64
	}
	var slow []drop

	h.mu.RLock()
	for p := range h.peers {
		seq, ok, err := p.deliver(events)
		if err != nil {
			h.mu.RUnlock()
			return err
		}
		if !ok {
			slow = append(slow, drop{p: p, sequence: seq})
		}
	}
	h.mu.RUnlock()

	for _, d := range slow {
		if !d.p.dropped.CompareAndSwap(false, true) {
			continue
		}
		observability.RecordStreamDrop()
		h.log.Warn().
			Str("remote", d.p.conn.RemoteAddr().String()).
			Uint64("sequence", d.sequence).
			Msg("subscriber queue full, closing connection")
		d.p.conn.Close()
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for p := range h.peers {
		p.mu.RLock()
		n += len(p.subs)
		p.mu.RUnlock()
	}
	return n
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	p := &peer{
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
		subs: make(map[int64]Filter),
	}

	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(p)
	h.readLoop(p)

	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	close(p.done)
	conn.Close()

	observability.UpdateStreamSubscribers(h.Subscribers())
}

// readLoop handles requests until the connection fails.
func (h *Hub) readLoop(p *peer) {
	p.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		resp := h.handleRequest(p, message)
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		// Responses must not be dropped; wait for room or for shutdown.
		select {
		case p.send <- data:
		case <-p.done:
			return
		}
	}
}

func (h *Hub) handleRequest(p *peer, message []byte) wsResponse {
	var req wsRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return errorResponse(0, errCodeParse, "parse error")
	}

	switch req.Method {
	case MethodSubscribe:
		var filter Filter
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params[0], &filter); err != nil {
				return errorResponse(req.ID, errCodeInvalidParams, err.Error())
			}
		}
		id := h.nextID.Add(1)
		p.mu.Lock()
		p.subs[id] = filter
		p.mu.Unlock()
		observability.UpdateStreamSubscribers(h.Subscribers())
		return resultResponse(req.ID, strconv.FormatInt(id, 10))

	case MethodUnsubscribe:
		var id int64
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &id) != nil {
			return errorResponse(req.ID, errCodeInvalidParams, "subscription id required")
		}
		p.mu.Lock()
		_, ok := p.subs[id]
		delete(p.subs, id)
		p.mu.Unlock()
		observability.UpdateStreamSubscribers(h.Subscribers())
		return resultResponse(req.ID, strconv.FormatBool(ok))

	default:
		return errorResponse(req.ID, errCodeMethodNotFound, "method not found: "+req.Method)
	}
}

// writeLoop is the only writer on the connection.
func (h *Hub) writeLoop(p *peer) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				p.conn.Close()
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.conn.Close()
				return
			}
		}
	}
}

// deliver queues the notifications of every subscription matching events.
// It stops at the first event that does not fit and returns its sequence.
func (p *peer) deliver(events []*domain.Event) (uint64, bool, error) {
	if p.dropped.Load() {
		return 0, true, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for id, filter := range p.subs {
		for _, e := range events {
			if !filter.Match(e) {
				continue
			}
			msg, err := json.Marshal(wsNotification{
				JSONRPC: "2.0",
				Method:  MethodNotification,
				Params:  &wsNotificationParams{Subscription: id, Result: e},
			})
			if err != nil {
				return 0, false, err
			}
			if !p.enqueue(msg) {
				return e.Sequence, false, nil
			}
		}
	}
	return 0, true, nil
}

// enqueue adds msg to the send queue without blocking.
func (p *peer) enqueue(msg []byte) bool {
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func resultResponse(id uint64, raw string) wsResponse {
	return wsResponse{JSONRPC: "2.0", ID: id, Result: json.RawMessage(raw)}
}

func errorResponse(id uint64, code int, msg string) wsResponse {
	return wsResponse{JSONRPC: "2.0", ID: id, Error: &wsError{Code: code, Message: msg}}
}
