package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/star/orbitscope/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// client manages a single websocket connection's write operations. Only the
// handler goroutine writes; readPump only reads.
type client struct {
	conn      *websocket.Conn
	bandwidth *rate.Limiter // nil when unlimited
	ip        string
	logger    *slog.Logger

	messagesSent int64
	bytesSent    int64
}

func newClient(conn *websocket.Conn, ip string, bandwidthLimit int, logger *slog.Logger) *client {
	c := &client{conn: conn, ip: ip, logger: logger}
	if bandwidthLimit > 0 {
		c.bandwidth = rate.NewLimiter(rate.Limit(bandwidthLimit), bandwidthLimit)
	}
	return c
}

// sendJSON marshals v and writes it as one text message, waiting for the
// bandwidth budget first.
func (c *client) sendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	if c.bandwidth != nil {
		n := len(data)
		if n > c.bandwidth.Burst() {
			n = c.bandwidth.Burst()
		}
		if err := c.bandwidth.WaitN(ctx, n); err != nil {
			return fmt.Errorf("bandwidth wait: %w", err)
		}
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.messagesSent++
	c.bytesSent += int64(len(data))
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(len(data)))

	return nil
}

// ping sends a websocket ping control frame.
func (c *client) ping() error {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// close sends a close frame with the given code. Errors are ignored; the
// connection is torn down either way.
func (c *client) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readPump drains inbound messages so control frames are processed, and
// calls done when the peer goes away or stops answering pings.
func (c *client) readPump(done func(), keepalive time.Duration) {
	defer done()

	pongWait := 2 * keepalive
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("stream read error", "remote_ip", c.ip, "error", err)
			}
			return
		}
	}
}
