// Package gateway owns the websocket connections: it upgrades requests,
// maps each connection to a session handle, holds back every event until the
// session has identified, and writes router output to the sockets.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"desacordo-backend/internal/events"
	"desacordo-backend/internal/metrics"
)

// Dispatcher receives the events of identified sessions, normally a
// router.Router.
type Dispatcher interface {
	Identify(sessionHandle, userID string) error
	Dispatch(sessionHandle, userID string, event events.Inbound)
	Disconnect(sessionHandle string)
}

type Options struct {
	// AllowedOrigins lists browser origins allowed to connect; "*" allows
	// any. When empty only same-origin requests pass.
	AllowedOrigins    []string
	MaxMessageSize    int64
	SendBufferSize    int
	RateLimitBurst    int
	RateLimitInterval time.Duration
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
}

func (o *Options) sanitize() {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 20
	}
	if o.RateLimitInterval <= 0 {
		o.RateLimitInterval = 5 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
}

type Gateway struct {
	sugar    *zap.SugaredLogger
	metrics  *metrics.Metrics
	opts     Options
	upgrader websocket.Upgrader

	allowAllOrigins bool
	allowedOrigins  map[string]struct{}

	mutex      sync.RWMutex
	clients    map[string]*Client
	dispatcher Dispatcher
	closing    bool
	wg         sync.WaitGroup
}

func New(sugar *zap.SugaredLogger, m *metrics.Metrics, opts Options) *Gateway {
	opts.sanitize()

	g := &Gateway{
		sugar:          sugar,
		metrics:        m,
		opts:           opts,
		allowedOrigins: make(map[string]struct{}),
		clients:        make(map[string]*Client),
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			g.allowAllOrigins = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			sugar.Warnf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}
		g.allowedOrigins[normalized] = struct{}{}
	}

	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}

	return g
}

// SetDispatcher must be called before the first connection is accepted.
func (g *Gateway) SetDispatcher(d Dispatcher) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.dispatcher = d
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// checkOrigin lets through requests without an Origin header (non-browser
// clients), same-origin requests and configured origins.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || g.allowAllOrigins {
		return true
	}

	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if _, allowed := g.allowedOrigins[normalized]; allowed {
		return true
	}

	parsed, _ := url.Parse(normalized)
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}

	g.sugar.Warnf("Blocked WebSocket connection from disallowed origin: %q", origin)
	return false
}

// ServeWS upgrades the request of an authenticated user and starts the
// session's pumps.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	g.mutex.RLock()
	closing := g.closing
	dispatcher := g.dispatcher
	g.mutex.RUnlock()

	if closing || dispatcher == nil {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	sugar := g.sugar
	sugar.Debugf("Connecting user ID [%s] to WebSocket", userID)

	handle, err := uuid.NewV7()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	// Upgrade replies to the client itself on failure
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sugar.Debug(err)
		return
	}

	burstPerSecond := float64(g.opts.RateLimitBurst) / g.opts.RateLimitInterval.Seconds()
	client := &Client{
		gateway:    g,
		dispatcher: dispatcher,
		conn:       conn,
		handle:     handle.String(),
		userID:     userID,
		addr:       r.RemoteAddr,
		send:       make(chan []byte, g.opts.SendBufferSize),
		done:       make(chan struct{}),
		limiter:    rate.NewLimiter(rate.Limit(burstPerSecond), g.opts.RateLimitBurst),
	}

	g.mutex.Lock()
	if g.closing {
		g.mutex.Unlock()
		conn.Close()
		return
	}
	g.clients[client.handle] = client
	clientCount := len(g.clients)
	g.wg.Add(2)
	g.mutex.Unlock()

	sugar.Debugf("Session [%s] of user [%s] connected from %s. Total clients: %d", client.handle, userID, client.addr, clientCount)

	go client.writePump()
	go client.readPump()
}

// Deliver queues payload for one session without blocking. It reports false
// when the session is gone. A session whose queue is full is dropped.
func (g *Gateway) Deliver(sessionHandle string, payload []byte) bool {
	g.mutex.RLock()
	client, ok := g.clients[sessionHandle]
	g.mutex.RUnlock()

	if !ok {
		g.metrics.FramesDropped.WithLabelValues("closed").Inc()
		return false
	}

	select {
	case <-client.done:
		g.metrics.FramesDropped.WithLabelValues("closed").Inc()
		return false
	default:
	}

	select {
	case client.send <- payload:
		g.metrics.FramesDelivered.Inc()
		return true
	default:
		g.metrics.FramesDropped.WithLabelValues("overflow").Inc()
		g.sugar.Warnf("Send queue of session [%s] is full, disconnecting", sessionHandle)
		client.close(websocket.ClosePolicyViolation, "too slow")
		return false
	}
}

func (g *Gateway) remove(c *Client) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.clients[c.handle] == c {
		delete(g.clients, c.handle)
	}
}

func (g *Gateway) ClientCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.clients)
}

// Shutdown refuses new connections, closes every session and waits for
// their pumps to finish or ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mutex.Lock()
	g.closing = true
	clients := make([]*Client, 0, len(g.clients))
	for _, client := range g.clients {
		clients = append(clients, client)
	}
	g.mutex.Unlock()

	g.sugar.Infof("Closing %d websocket sessions", len(clients))
	for _, client := range clients {
		client.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
