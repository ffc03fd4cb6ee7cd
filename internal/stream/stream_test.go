package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
)

var (
	alice = domain.Principal{0xa1}
	bob   = domain.Principal{0xb0}
)

func startHub(t *testing.T, cfg HubConfig) (*Hub, string) {
	t.Helper()

	hub := NewHub(cfg, zerolog.Nop())
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func receive(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
		return domain.Event{}
	}
}

func TestHubAndClient(t *testing.T) {
	hub, url := startHub(t, DefaultHubConfig())
	ctx := context.Background()

	client, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	defer client.Close()

	all, err := client.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	bobOnly, err := client.Subscribe(ctx, Filter{Principal: &bob})
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Subscribers())

	events := []*domain.Event{
		{ID: "1", Sequence: 1, Kind: domain.EventKindMint, Recipient: alice, Amount: 100},
		{ID: "2", Sequence: 2, Kind: domain.EventKindTransfer, Sender: alice, Recipient: bob, Amount: 40, Memo: []byte("x")},
	}
	require.NoError(t, hub.Publish(ctx, events))

	first := receive(t, all)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, alice, first.Recipient)

	second := receive(t, all)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, []byte("x"), second.Memo)

	forBob := receive(t, bobOnly)
	assert.Equal(t, uint64(2), forBob.Sequence)
	assert.Equal(t, domain.EventKindTransfer, forBob.Kind)
}

func TestClient_CloseClosesSubscriptions(t *testing.T) {
	_, url := startHub(t, DefaultHubConfig())
	ctx := context.Background()

	client, err := Dial(ctx, url, nil)
	require.NoError(t, err)

	ch, err := client.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, ok := <-ch
	assert.False(t, ok)

	_, err = client.Subscribe(ctx, Filter{})
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestHub_UnknownMethod(t *testing.T) {
	_, url := startHub(t, DefaultHubConfig())

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: 7, Method: "transfer"}))

	var resp wsResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, uint64(7), resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeMethodNotFound, resp.Error.Code)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub, url := startHub(t, DefaultHubConfig())

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: 1, Method: MethodSubscribe}))
	var resp wsResponse
	require.NoError(t, conn.ReadJSON(&resp))
	require.Nil(t, resp.Error)
	assert.Equal(t, 1, hub.Subscribers())

	require.NoError(t, conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": MethodUnsubscribe, "params": []any{resp.Result},
	}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "true", string(resp.Result))
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.SendBuffer = 1
	hub, url := startHub(t, cfg)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsRequest{JSONRPC: "2.0", ID: 1, Method: MethodSubscribe}))
	var resp wsResponse
	require.NoError(t, conn.ReadJSON(&resp))

	// The client never reads again; Publish must still return promptly.
	events := make([]*domain.Event, 0, 5000)
	for i := 1; i <= 5000; i++ {
		events = append(events, &domain.Event{ID: "e", Sequence: uint64(i), Kind: domain.EventKindMint, Recipient: alice, Amount: 1})
	}

	done := make(chan struct{})
	go func() {
		_ = hub.Publish(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_FullQueueClosesConnection(t *testing.T) {
	hub := NewHub(DefaultHubConfig(), zerolog.Nop())

	// Hold the server side of the connection without a write loop, so the
	// queue only drains when the test says so.
	accepted := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var conn *websocket.Conn
	select {
	case conn = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for connection")
	}

	slow := &peer{
		conn: conn,
		send: make(chan []byte, 2),
		done: make(chan struct{}),
		subs: map[int64]Filter{1: {}},
	}
	hub.mu.Lock()
	hub.peers[slow] = struct{}{}
	hub.mu.Unlock()

	events := []*domain.Event{
		{ID: "1", Sequence: 1, Kind: domain.EventKindMint, Recipient: alice, Amount: 1},
		{ID: "2", Sequence: 2, Kind: domain.EventKindMint, Recipient: alice, Amount: 1},
		{ID: "3", Sequence: 3, Kind: domain.EventKindMint, Recipient: alice, Amount: 1},
	}
	require.NoError(t, hub.Publish(context.Background(), events))

	assert.True(t, slow.dropped.Load())
	assert.Len(t, slow.send, 2)

	// Later events are not queued for a dropped peer.
	require.NoError(t, hub.Publish(context.Background(), events[:1]))
	assert.Len(t, slow.send, 2)

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = client.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection was not closed")
	}
}

func TestHub_SlowClientSeesDisconnect(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.SendBuffer = 1
	hub, url := startHub(t, cfg)
	ctx := context.Background()

	clientCfg := DefaultClientConfig()
	clientCfg.Buffer = 1
	client, err := Dial(ctx, url, &clientCfg)
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	// The subscription channel is never drained, so the queue backs up until
	// the hub gives up on the connection.
	memo := []byte(strings.Repeat("m", 64*1024))
	deadline := time.Now().Add(10 * time.Second)
	for seq := uint64(1); hub.Subscribers() > 0; seq++ {
		require.True(t, time.Now().Before(deadline), "slow subscriber was never dropped")
		require.NoError(t, hub.Publish(ctx, []*domain.Event{
			{ID: strconv.FormatUint(seq, 10), Sequence: seq, Kind: domain.EventKindMint, Recipient: alice, Amount: 1, Memo: memo},
		}))
		time.Sleep(time.Millisecond)
	}

	// The channel closes once the already delivered events are consumed.
	timeout := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription channel not closed after disconnect")
		}
	}
}

func TestFilter_Match(t *testing.T) {
	transfer := &domain.Event{Kind: domain.EventKindTransfer, Sender: alice, Recipient: bob}
	mint := &domain.Event{Kind: domain.EventKindMint, Recipient: alice}

	assert.True(t, Filter{}.Match(transfer))
	assert.True(t, Filter{Principal: &bob}.Match(transfer))
	assert.False(t, Filter{Principal: &bob}.Match(mint))
	assert.True(t, Filter{Kinds: []domain.EventKind{domain.EventKindMint}}.Match(mint))
	assert.False(t, Filter{Kinds: []domain.EventKind{domain.EventKindBurn}}.Match(mint))
	assert.False(t, Filter{Principal: &alice, Kinds: []domain.EventKind{domain.EventKindBurn}}.Match(mint))
}
