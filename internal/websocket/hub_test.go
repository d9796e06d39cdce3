package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"riskdash/internal/operations"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errClosed = errors.New("connection closed")

// fakeConn records written frames and blocks reads until closed
type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	types    []int
	closed   chan struct{}
	once     sync.Once
	failNext bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return errClosed
	}
	c.types = append(c.types, messageType)
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errClosed
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) RemoteAddr() string                { return "127.0.0.1:5000" }

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for i, data := range c.written {
		if c.types[i] != gorilla.TextMessage {
			continue
		}
		var m Message
		if json.Unmarshal(data, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) sawClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.types {
		if t == gorilla.CloseMessage {
			return true
		}
	}
	return false
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Stop()

	a, b := newFakeConn(), newFakeConn()
	require.NotNil(t, Serve(hub, a, ClientConfig{}, "trace-a", nil))
	require.NotNil(t, Serve(hub, b, ClientConfig{}, "", nil))
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(Message{Type: operations.EventJobProgress, JobID: "j1", Page: "backtest", Progress: 40, Status: "running"})

	for _, conn := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool { return len(conn.messages()) == 2 }, time.Second, 5*time.Millisecond)
		msgs := conn.messages()
		assert.Equal(t, TypeConnection, msgs[0].Type)
		assert.Equal(t, "j1", msgs[1].JobID)
		assert.Equal(t, 40, msgs[1].Progress)
		assert.False(t, msgs[1].Timestamp.IsZero())
	}
	assert.Equal(t, "trace-a", a.messages()[0].TraceID)
}

func TestHubUnregistersClosedClient(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Stop()

	conn := newFakeConn()
	Serve(hub, conn, ClientConfig{}, "", nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()

	conn := newFakeConn()
	Serve(hub, conn, ClientConfig{}, "", nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Stop()
	hub.Stop()
	require.Eventually(t, conn.sawClose, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())

	// nothing blocks once stopped
	hub.Broadcast(Message{Type: "late"})
	assert.Nil(t, Serve(hub, newFakeConn(), ClientConfig{}, "", nil))
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Stop()

	// a client without pumps never drains its buffer
	conn := newFakeConn()
	client := NewClient(hub, conn, ClientConfig{SendBuffer: 2}, "", nil)
	require.True(t, hub.Register(client))

	for i := 0; i < 3; i++ {
		hub.Broadcast(Message{Type: operations.EventJobProgress, Progress: i})
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClientPings(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Stop()

	conn := newFakeConn()
	Serve(hub, conn, ClientConfig{PingPeriod: 10 * time.Millisecond, PongWait: time.Second}, "", nil)

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		for _, typ := range conn.types {
			if typ == gorilla.PingMessage {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestClientConfigDefaults(t *testing.T) {
	cfg := ClientConfig{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second}.withDefaults()
	assert.Equal(t, 9*time.Second, cfg.PingPeriod)
	assert.Equal(t, 10*time.Second, cfg.WriteWait)
	assert.Equal(t, 256, cfg.SendBuffer)
}

func TestJobSink(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Stop()

	conn := newFakeConn()
	Serve(hub, conn, ClientConfig{}, "", nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	JobSink(hub).Publish(operations.ProgressUpdate{
		Type:      operations.EventJobCompleted,
		JobID:     "j9",
		Page:      "macro_linkage",
		Progress:  100,
		Status:    operations.JobStatusCompleted,
		Message:   "Job completed successfully",
		Timestamp: time.Now(),
	})

	require.Eventually(t, func() bool { return len(conn.messages()) == 2 }, time.Second, 5*time.Millisecond)
	msg := conn.messages()[1]
	assert.Equal(t, operations.EventJobCompleted, msg.Type)
	assert.Equal(t, "macro_linkage", msg.Page)
	assert.Equal(t, "completed", msg.Status)
}

func TestHandlerUpgrade(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(NewHandler(hub, HandlerConfig{AllowedOrigins: []string{"http://allowed.test"}}, nil))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := gorilla.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	header = http.Header{"Origin": []string{"http://allowed.test"}}
	conn, _, err := gorilla.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, TypeConnection, hello.Type)

	hub.Broadcast(Message{Type: operations.EventJobQueued, JobID: "j1"})
	var queued Message
	require.NoError(t, conn.ReadJSON(&queued))
	assert.Equal(t, "j1", queued.JobID)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
