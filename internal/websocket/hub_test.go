package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"salesforecast/internal/infrastructure"
	"salesforecast/internal/pipeline"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeConn satisfies Connection without a network.
type fakeConn struct {
	closed chan struct{}
}

func newFakeConn() *fakeConn { return &fakeConn{closed: make(chan struct{})} }

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, io.EOF
}
func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadLimit(int64)               {}
func (f *fakeConn) SetPongHandler(func(string) error) {}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case b, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var m Message
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func startedHub(t *testing.T) *Hub {
	t.Helper()
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	h := NewHub(testLogger(), WithMetrics(m))
	h.Start()
	t.Cleanup(h.Stop)
	return h
}

func TestHub_StartStopIdempotent(t *testing.T) {
	h := NewHub(testLogger())
	h.Start()
	h.Start()
	assert.True(t, h.running)
	h.Stop()
	h.Stop()
	assert.False(t, h.running)
}

func TestHub_RegisterSendsConnectionMessage(t *testing.T) {
	h := startedHub(t)
	c := NewClient(h, newFakeConn(), "10.0.0.1:1234", "trace-1", testLogger())
	h.Register(c)

	msg := receive(t, c)
	assert.Equal(t, TypeConnection, msg.Type)
	assert.Equal(t, "trace-1", msg.TraceID)
	assert.Equal(t, 1, h.ClientCount())
	assert.EqualValues(t, 1, h.Stats().TotalConnections)
}

func TestHub_NotifyBroadcastsPipelineEvents(t *testing.T) {
	h := startedHub(t)
	c := NewClient(h, newFakeConn(), "", "", testLogger())
	h.Register(c)
	receive(t, c)

	ctx := infrastructure.WithTraceID(context.Background(), "run-trace")
	var obs pipeline.Observer = h
	obs.Notify(ctx, pipeline.Event{RunID: "r1", Stage: "training", Status: pipeline.StatusCompleted})

	msg := receive(t, c)
	assert.Equal(t, TypePipelineEvent, msg.Type)
	assert.Equal(t, "run-trace", msg.TraceID)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var ev pipeline.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "training", ev.Stage)
	assert.Equal(t, pipeline.StatusCompleted, ev.Status)
}

func TestHub_BroadcastDropsWhenQueueFull(t *testing.T) {
	h := NewHub(testLogger())
	for i := 0; i < broadcastQueue+3; i++ {
		h.Broadcast(context.Background(), TypeStatus, i)
	}
	st := h.Stats()
	assert.EqualValues(t, 3, st.MessagesDropped)
	assert.Equal(t, broadcastQueue, st.QueueDepth)
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	h := startedHub(t)
	c := NewClient(h, newFakeConn(), "", "", testLogger())
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// The connection message plus these fill the buffer.
	for i := 0; i < sendBuffer-1; i++ {
		c.send <- []byte("{}")
	}
	h.Broadcast(context.Background(), TypeStatus, "overflow")

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandler_StreamsOverWebsocket(t *testing.T) {
	h := startedHub(t)
	srv := httptest.NewServer(Handler(h, testLogger()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, TypeConnection, hello.Type)

	h.Notify(context.Background(), pipeline.Event{Stage: "load", Status: pipeline.StatusStarted})
	var ev Message
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, TypePipelineEvent, ev.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
