package relay

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/osc-t2s/osc-t2s/observe/observetest"
	"github.com/osc-t2s/osc-t2s/osc"
)

type sentMessage struct {
	addr string
	args []interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendContext(_ context.Context, addr string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{addr: addr, args: args})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fixture struct {
	hub     *Hub
	sender  *fakeSender
	metrics *observetest.Reader
	server  *httptest.Server
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	m, reader := observetest.NewMetrics(t)
	opts.Metrics = m
	opts.Logger = slog.New(slog.DiscardHandler)

	sender := &fakeSender{}
	hub := NewHub(sender, opts)
	srv := NewServer("", hub, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "# metrics\n")
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	return &fixture{hub: hub, sender: sender, metrics: reader, server: ts}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	before := f.hub.Count()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return f.hub.Count() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_Broadcast(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.dial(t)
	b := f.dial(t)

	d := osc.NewDispatcher(nil)
	d.Observe(f.hub)
	d.Dispatch(osc.NewMessage("/text", "hello", 1))

	for _, conn := range []*websocket.Conn{a, b} {
		got := readFrame(t, conn)
		assert.Equal(t, TypeOSC, got.Type)
		assert.Equal(t, "/text", got.Address)
		assert.Equal(t, []interface{}{"hello", float64(1)}, got.Args)
	}
	assert.Equal(t, int64(2), f.metrics.Sum("osc.relay.clients"))
}

func TestHub_UnencodableFrameKeepsClients(t *testing.T) {
	f := newFixture(t, Options{})
	conn := f.dial(t)

	f.hub.HandleMessage(osc.NewMessage("/level", float32(math.NaN())))
	f.hub.HandleMessage(osc.NewMessage("/level", math.Inf(-1)))
	f.hub.HandleMessage(osc.NewMessage("/level", 0.5))

	got := readFrame(t, conn)
	assert.Equal(t, []interface{}{0.5}, got.Args)
	assert.Equal(t, 1, f.hub.Count())
	assert.Equal(t, int64(2), f.metrics.Sum("osc.relay.dropped"))
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	f := newFixture(t, Options{SendBuffer: 1})
	f.dial(t) // never reads

	payload := strings.Repeat("x", 64<<10)
	start := time.Now()
	for i := 0; i < 400; i++ {
		f.hub.HandleMessage(osc.NewMessage("/text", payload))
	}

	assert.Less(t, time.Since(start), writeWait)
	assert.Positive(t, f.metrics.Sum("osc.relay.dropped"))
}

func TestHub_Register(t *testing.T) {
	f := newFixture(t, Options{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(Frame{Type: TypeRegister}))
	got := readFrame(t, conn)
	assert.Equal(t, TypeRegistered, got.Type)
	assert.NotEmpty(t, got.ID)
}

func TestHub_Send(t *testing.T) {
	f := newFixture(t, Options{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"send","address":"/startRecording","args":[1, 2.5, "x", true]}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"send","address":"/stopRecording"}`)))

	require.Eventually(t, func() bool { return len(f.sender.messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []sentMessage{
		{addr: "/startRecording", args: []interface{}{int32(1), 2.5, "x", true}},
		{addr: "/stopRecording"},
	}, f.sender.messages())
}

func TestHub_RejectsBadFrames(t *testing.T) {
	f := newFixture(t, Options{})
	conn := f.dial(t)

	for _, raw := range []string{
		`not json`,
		`{"type":"send","address":"no-slash"}`,
		`{"type":"send","address":"/a","args":[{}]}`,
		`{"type":"subscribe"}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		got := readFrame(t, conn)
		assert.Equal(t, TypeError, got.Type, raw)
		assert.NotEmpty(t, got.Error, raw)
	}
	assert.Empty(t, f.sender.messages())
	assert.Equal(t, int64(4), f.metrics.Sum("osc.relay.dropped"))
}

func TestHub_RateLimit(t *testing.T) {
	f := newFixture(t, Options{Limit: rate.Every(time.Hour), Burst: 1})
	conn := f.dial(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type": TypeSend, "address": "/text", "args": []interface{}{i},
		}))
	}

	require.Eventually(t, func() bool {
		return f.metrics.Sum("osc.relay.dropped") == 2
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, f.sender.messages(), 1)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	f := newFixture(t, Options{})
	conn := f.dial(t)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.hub.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), f.metrics.Sum("osc.relay.clients"))
}

func TestHub_CloseRefusesClients(t *testing.T) {
	f := newFixture(t, Options{})
	conn := f.dial(t)

	f.hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()

	require.NoError(t, late.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, f.hub.Count())
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t, Options{})

	for path, want := range map[string]string{
		"/health":  "ok",
		"/metrics": "# metrics\n",
	} {
		resp, err := http.Get(f.server.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, want, string(body), path)
	}
}

func TestServer_Run(t *testing.T) {
	hub := NewHub(nil, Options{Logger: slog.New(slog.DiscardHandler)})
	srv := NewServer("", hub, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_RunBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ln.Addr().String(), NewHub(nil, Options{Logger: slog.New(slog.DiscardHandler)}), nil)
	assert.Error(t, srv.Run(context.Background()))
}
