package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"desacordo-backend/internal/events"
	"desacordo-backend/internal/gateway"
	"desacordo-backend/internal/metrics"
)

type fakeDispatcher struct {
	gateway *gateway.Gateway

	mutex      sync.Mutex
	identified []string

	dispatched   chan events.Inbound
	disconnected chan string
}

func (d *fakeDispatcher) Identify(handle, userID string) error {
	if userID == "404" {
		return errors.New("not found")
	}
	d.mutex.Lock()
	d.identified = append(d.identified, handle)
	d.mutex.Unlock()

	d.gateway.Deliver(handle, []byte("welcome\n{}"))
	return nil
}

func (d *fakeDispatcher) Dispatch(handle, userID string, event events.Inbound) {
	d.dispatched <- event
}

func (d *fakeDispatcher) Disconnect(handle string) {
	d.disconnected <- handle
}

func (d *fakeDispatcher) handles() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]string(nil), d.identified...)
}

func newTestServer(t *testing.T, opts gateway.Options) (*gateway.Gateway, *fakeDispatcher, *httptest.Server) {
	t.Helper()

	g := gateway.New(zaptest.NewLogger(t).Sugar(), metrics.New(prometheus.NewRegistry()), opts)
	d := &fakeDispatcher{
		gateway:      g,
		dispatched:   make(chan events.Inbound, 16),
		disconnected: make(chan string, 16),
	}
	g.SetDispatcher(d)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		g.Shutdown(ctx)
	})

	return g, d, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatal(err)
	}
}

func read(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	kind, body, err := events.SplitFrame(data)
	if err != nil {
		t.Fatalf("bad frame %q", data)
	}
	return kind, body
}

func readError(t *testing.T, conn *websocket.Conn) events.ErrorNotice {
	t.Helper()
	kind, body := read(t, conn)
	if kind != events.Error {
		t.Fatalf("got %s, want error", kind)
	}
	var notice events.ErrorNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		t.Fatal(err)
	}
	return notice
}

func identify(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	write(t, conn, `join_server
{"id":"`+userID+`","username":"u"}`)
	if kind, _ := read(t, conn); kind != "welcome" {
		t.Fatalf("got %s, want welcome", kind)
	}
}

func TestNothingDispatchedBeforeIdentify(t *testing.T) {
	_, d, srv := newTestServer(t, gateway.Options{})
	conn := dial(t, srv, "1", nil)

	write(t, conn, "typing\n{\"channelId\":\"ch1\"}")
	if notice := readError(t, conn); notice.Kind != events.ErrorAuthorization || notice.Event != events.Typing {
		t.Errorf("got %+v", notice)
	}

	identify(t, conn, "1")
	write(t, conn, "join_channel\n\"ch1\"")

	select {
	case event := <-d.dispatched:
		if event.Kind() != events.JoinChannel {
			t.Errorf("first dispatched event is %s", event.Kind())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
	if len(d.dispatched) != 0 {
		t.Errorf("%d extra events dispatched", len(d.dispatched))
	}
}

func TestIdentifyAsAnotherUser(t *testing.T) {
	_, d, srv := newTestServer(t, gateway.Options{})
	conn := dial(t, srv, "1", nil)

	write(t, conn, "join_server\n{\"id\":\"2\"}")
	if notice := readError(t, conn); notice.Kind != events.ErrorAuthorization {
		t.Errorf("got %+v", notice)
	}
	if got := d.handles(); len(got) != 0 {
		t.Errorf("identified %v", got)
	}
}

func TestIdentifyUnknownUserCloses(t *testing.T) {
	_, _, srv := newTestServer(t, gateway.Options{})
	conn := dial(t, srv, "404", nil)

	write(t, conn, "join_server\n{\"id\":\"404\"}")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("got %v", err)
	}
}

func TestInvalidFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"no kind line", "hello"},
		{"unknown kind", "nuke\n{}"},
		{"bad json", "typing\n{"},
		{"failed validation", "typing\n{}"},
	}

	_, d, srv := newTestServer(t, gateway.Options{})
	conn := dial(t, srv, "1", nil)
	identify(t, conn, "1")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write(t, conn, tt.frame)
			if notice := readError(t, conn); notice.Kind != events.ErrorValidation {
				t.Errorf("got %+v", notice)
			}
		})
	}
	if len(d.dispatched) != 0 {
		t.Errorf("invalid frames dispatched")
	}
}

func TestDisconnectReportedOnce(t *testing.T) {
	g, d, srv := newTestServer(t, gateway.Options{})
	conn := dial(t, srv, "1", nil)
	identify(t, conn, "1")
	handle := d.handles()[0]

	conn.Close()

	select {
	case got := <-d.disconnected:
		if got != handle {
			t.Errorf("disconnected %s, want %s", got, handle)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}

	select {
	case got := <-d.disconnected:
		t.Errorf("second disconnect for %s", got)
	case <-time.After(100 * time.Millisecond):
	}

	if g.Deliver(handle, []byte("late\n{}")) {
		t.Error("late frame was accepted")
	}
	if n := g.ClientCount(); n != 0 {
		t.Errorf("%d clients left", n)
	}
}

func TestUnidentifiedCloseNotReported(t *testing.T) {
	g, d, srv := newTestServer(t, gateway.Options{})
	conn := dial(t, srv, "1", nil)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for g.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case got := <-d.disconnected:
		t.Errorf("disconnect reported for unidentified session %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOriginCheck(t *testing.T) {
	_, _, srv := newTestServer(t, gateway.Options{AllowedOrigins: []string{"http://good.example"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=1"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("got %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", resp.StatusCode)
	}

	dial(t, srv, "1", http.Header{"Origin": {"http://GOOD.example"}})
}

func TestRateLimit(t *testing.T) {
	_, d, srv := newTestServer(t, gateway.Options{RateLimitBurst: 2, RateLimitInterval: time.Hour})
	conn := dial(t, srv, "1", nil)
	identify(t, conn, "1")

	write(t, conn, "join_channel\n\"ch1\"")
	write(t, conn, "join_channel\n\"ch2\"")

	if notice := readError(t, conn); notice.Kind != events.ErrorValidation || !strings.Contains(notice.Message, "rate limit") {
		t.Errorf("got %+v", notice)
	}

	select {
	case event := <-d.dispatched:
		if got := event.(*events.JoinChannelEvent).ChannelID; got != "ch1" {
			t.Errorf("dispatched %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first event not dispatched")
	}
	if len(d.dispatched) != 0 {
		t.Error("rate limited event dispatched")
	}
}

func TestShutdown(t *testing.T) {
	g, d, srv := newTestServer(t, gateway.Options{})
	conn := dial(t, srv, "1", nil)
	identify(t, conn, "1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("got %v", err)
	}

	select {
	case <-d.disconnected:
	default:
		t.Error("shutdown did not report the disconnect")
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("dial after shutdown: %v", err)
	}
}

func TestSlowClientDroppedWithoutBlocking(t *testing.T) {
	g, d, srv := newTestServer(t, gateway.Options{SendBufferSize: 1, WriteWait: 3 * time.Second})
	conn := dial(t, srv, "1", nil)
	identify(t, conn, "1")
	handle := d.handles()[0]

	// the client stops reading, so socket buffers fill and the queue overflows
	payload := []byte("big\n" + strings.Repeat("x", 1<<20))

	dropped := false
	for i := 0; i < 500 && !dropped; i++ {
		start := time.Now()
		ok := g.Deliver(handle, payload)
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Fatalf("Deliver #%d blocked for %s", i, elapsed)
		}
		dropped = !ok
	}
	if !dropped {
		t.Fatal("send queue never overflowed")
	}

	if n := g.ClientCount(); n != 0 {
		t.Errorf("%d clients left after overflow", n)
	}
	if g.Deliver(handle, []byte("late\n{}")) {
		t.Error("frame accepted after the session was dropped")
	}

	select {
	case got := <-d.disconnected:
		if got != handle {
			t.Errorf("disconnected %s, want %s", got, handle)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("disconnect not reported")
	}
}
