package channels

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn. Reads block on the inbound channel; writes
// are collected for assertions.
type fakeConn struct {
	inbound chan []byte

	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8)}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.inbound:
		if !ok {
			return nil, errors.New("connection closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

// frames decodes everything written to the conn.
func (c *fakeConn) frames(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.writes))
	for _, raw := range c.writes {
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) waitForEvent(t *testing.T, event string) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range c.frames(t) {
			if f.Event == event {
				return f
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q frame received", event)
	return Frame{}
}

// connect runs HandleConnection in the background and waits for registration.
func connect(t *testing.T, hub *Hub, userID, clientType string) (*fakeConn, func()) {
	t.Helper()
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.HandleConnection(ctx, userID, clientType, conn)
	}()
	conn.waitForEvent(t, "connection:established")

	return conn, func() {
		cancel()
		<-done
	}
}

func TestHandleConnectionRejectsUnknownClientType(t *testing.T) {
	hub := NewHub(0, nil, nil)
	err := hub.HandleConnection(context.Background(), "u1", "desktop", newFakeConn())
	assert.Error(t, err)
}

func TestRegisterAndIsConnected(t *testing.T) {
	hub := NewHub(0, nil, nil)
	_, disconnect := connect(t, hub, "u1", ClientTypeEditor)

	assert.True(t, hub.IsConnected("u1", ClientTypeEditor))
	assert.False(t, hub.IsConnected("u1", ClientTypeWeb))
	assert.True(t, hub.IsConnected("u1", ""))
	assert.False(t, hub.IsConnected("u2", ""))
	assert.Equal(t, 1, hub.ActiveSessions())

	disconnect()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ActiveSessions() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, hub.IsConnected("u1", ClientTypeEditor))
	assert.Equal(t, 0, hub.ActiveSessions())
}

func TestSendToUserTargetsClientType(t *testing.T) {
	hub := NewHub(0, nil, nil)
	editor, stopEditor := connect(t, hub, "u1", ClientTypeEditor)
	defer stopEditor()
	web, stopWeb := connect(t, hub, "u1", ClientTypeWeb)
	defer stopWeb()

	require.NoError(t, hub.SendToUser("u1", ClientTypeEditor, "approval:request",
		map[string]string{"request_id": "r1"}))

	frame := editor.waitForEvent(t, "approval:request")
	var payload map[string]string
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, "r1", payload["request_id"])

	for _, f := range web.frames(t) {
		assert.NotEqual(t, "approval:request", f.Event)
	}
}

func TestSendToUserAllSessionsReceive(t *testing.T) {
	hub := NewHub(0, nil, nil)
	first, stopFirst := connect(t, hub, "u1", ClientTypeEditor)
	defer stopFirst()
	second, stopSecond := connect(t, hub, "u1", ClientTypeEditor)
	defer stopSecond()

	require.NoError(t, hub.SendToUser("u1", ClientTypeEditor, "notification",
		map[string]string{"message": "hello"}))

	first.waitForEvent(t, "notification")
	second.waitForEvent(t, "notification")
}

func TestSendToUserNoSessionIsSilentDrop(t *testing.T) {
	hub := NewHub(0, nil, nil)
	err := hub.SendToUser("ghost", ClientTypeEditor, "approval:request", nil)
	assert.NoError(t, err)
}

func TestBroadcastReachesEveryone(t *testing.T) {
	hub := NewHub(0, nil, nil)
	a, stopA := connect(t, hub, "u1", ClientTypeEditor)
	defer stopA()
	b, stopB := connect(t, hub, "u2", ClientTypeWeb)
	defer stopB()

	hub.Broadcast("mutation:result", map[string]string{"mutation_id": "m1"})
	a.waitForEvent(t, "mutation:result")
	b.waitForEvent(t, "mutation:result")
}

func TestInboundFrameDispatch(t *testing.T) {
	hub := NewHub(0, nil, nil)

	received := make(chan string, 1)
	hub.On("approval:response", func(_ context.Context, s *Session, data json.RawMessage) {
		var payload map[string]string
		if err := json.Unmarshal(data, &payload); err == nil {
			received <- payload["request_id"]
		}
	})

	conn, disconnect := connect(t, hub, "u1", ClientTypeEditor)
	defer disconnect()

	conn.inbound <- []byte(`{"event":"approval:response","data":{"request_id":"r9"}}`)
	select {
	case id := <-received:
		assert.Equal(t, "r9", id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestUnknownInboundEventAnswersError(t *testing.T) {
	hub := NewHub(0, nil, nil)
	conn, disconnect := connect(t, hub, "u1", ClientTypeWeb)
	defer disconnect()

	conn.inbound <- []byte(`{"event":"no:such:event","data":{}}`)
	conn.waitForEvent(t, "error")
}

func TestMalformedInboundFrameIgnored(t *testing.T) {
	hub := NewHub(0, nil, nil)
	conn, disconnect := connect(t, hub, "u1", ClientTypeWeb)
	defer disconnect()

	conn.inbound <- []byte(`not json`)
	// The session must survive and keep processing frames.
	conn.inbound <- []byte(`{"event":"still-unknown"}`)
	conn.waitForEvent(t, "error")
	assert.True(t, hub.IsConnected("u1", ClientTypeWeb))
}
