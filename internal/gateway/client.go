package gateway

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"desacordo-backend/internal/events"
)

// Client is one websocket connection. Its session handle is unique per
// connection and never reused.
type Client struct {
	gateway    *Gateway
	dispatcher Dispatcher
	conn       *websocket.Conn
	handle     string
	userID     string
	addr       string
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	limiter    *rate.Limiter

	// only touched by readPump
	identified bool
}

// close stops both pumps. Only the first call has any effect. It never
// waits on the network: callers such as Deliver run under the router lock.
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.gateway.remove(c)
		close(c.done)

		// WriteControl waits for a write stuck on a stalled peer
		go c.closeConn(code, reason)
	})
}

func (c *Client) closeConn(code int, reason string) {
	deadline := time.Now().Add(c.gateway.opts.WriteWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.gateway.sugar.Debugf("Error closing connection of session [%s]: %v", c.handle, err)
	}
}

func isExpectedCloseError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, websocket.ErrCloseSent)
}

func (c *Client) reply(event string, kind events.ErrorKind, message string) {
	c.gateway.Deliver(c.handle, events.ErrorFrame(event, kind, message))
}

func (c *Client) readPump() {
	sugar := c.gateway.sugar

	defer func() {
		c.close(websocket.CloseNormalClosure, "")
		// readPump runs once per client, so the router hears about each
		// close exactly once
		if c.identified {
			c.dispatcher.Disconnect(c.handle)
		}
		c.gateway.wg.Done()
	}()

	c.conn.SetReadLimit(c.gateway.opts.MaxMessageSize)
	pongWait := c.gateway.opts.PongWait
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		sugar.Debug(err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.Allow() {
			sugar.Warnf("Rate limit exceeded for session [%s], discarding frame", c.handle)
			c.gateway.metrics.EventErrorsTotal.WithLabelValues("frame", string(events.ErrorValidation)).Inc()
			c.reply("", events.ErrorValidation, "rate limit exceeded")
			continue
		}

		if !c.handleFrame(raw) {
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	sugar := c.gateway.sugar
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		sugar.Warnf("Frame from session [%s] exceeded maximum size of %d bytes", c.handle, c.gateway.opts.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway), isExpectedCloseError(err):
		sugar.Debugf("Session [%s] disconnected: %v", c.handle, err)
	default:
		sugar.Debugf("WebSocket read error from session [%s]: %v", c.handle, err)
	}
}

// handleFrame decodes one frame. Until the session has identified with
// join_server nothing reaches the dispatcher. It returns false when the
// session must be closed.
func (c *Client) handleFrame(raw []byte) bool {
	event, err := events.Decode(raw)
	if err != nil {
		kind, _, _ := events.SplitFrame(raw)
		c.gateway.sugar.Debugf("Invalid frame from session [%s]: %v", c.handle, err)
		c.gateway.metrics.EventErrorsTotal.WithLabelValues("frame", string(events.ErrorValidation)).Inc()
		c.reply(kind, events.ErrorValidation, err.Error())
		return true
	}

	if c.identified {
		c.dispatcher.Dispatch(c.handle, c.userID, event)
		return true
	}

	join, ok := event.(*events.JoinServerEvent)
	if !ok {
		c.reply(event.Kind(), events.ErrorAuthorization, "identify with join_server first")
		return true
	}
	if join.UserID != c.userID {
		c.reply(event.Kind(), events.ErrorAuthorization, "user id does not match the session")
		return true
	}

	if err := c.dispatcher.Identify(c.handle, c.userID); err != nil {
		c.gateway.sugar.Warnf("Session [%s] failed to identify: %v", c.handle, err)
		c.close(websocket.ClosePolicyViolation, "unknown user")
		return false
	}
	c.identified = true
	return true
}

func (c *Client) writePump() {
	sugar := c.gateway.sugar
	ticker := time.NewTicker(c.gateway.opts.PingPeriod)

	defer func() {
		ticker.Stop()
		c.close(websocket.CloseNormalClosure, "")
		c.gateway.wg.Done()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			return

		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				sugar.Debugf("Error writing to session [%s]: %v", c.handle, err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				sugar.Debugf("Error writing ping to session [%s]: %v", c.handle, err)
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.gateway.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// flush drops whatever is still queued so late frames are never written.
func (c *Client) flush() {
	for {
		select {
		case <-c.send:
			c.gateway.metrics.FramesDropped.WithLabelValues("closed").Inc()
		default:
			return
		}
	}
}
