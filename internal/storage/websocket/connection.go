package websocket

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/spaceweb/impactsim/internal/logging"
	"github.com/spaceweb/impactsim/pkg/streaming"
)

const (
	outboxSize   = 1024
	ackBacklog   = 16
	maxRedials   = 10
	firstBackoff = time.Second
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection keeps one collector socket alive. Only the pump goroutine of the
// current socket writes to it; a failed socket is replaced by redial.
type connection struct {
	endpoint string
	log      logging.Logger

	outbox chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}

	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	// hello is written first on every replacement socket.
	hello []byte
}

func newConnection(logger logging.Logger) *connection {
	return &connection{
		log:    logger,
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, ackBacklog),
		done:   make(chan struct{}),
	}
}

// collectorURL puts the shared secret in the query string.
func collectorURL(raw, secret string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid collector URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *connection) dial(rawURL, secret string) error {
	endpoint, err := collectorURL(rawURL, secret)
	if err != nil {
		return err
	}
	c.endpoint = endpoint

	conn, err := c.open()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.attach(conn)
	return nil
}

func (c *connection) open() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("collector dial: %w", err)
	}
	return conn, nil
}

func (c *connection) attach(conn *ws.Conn) {
	go c.pump(conn)
	go c.listen(conn)
}

func writeText(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// pump writes queued messages until the socket fails. The failed message is
// put back so the next socket sends it.
func (c *connection) pump(conn *ws.Conn) {
	for {
		var data []byte
		select {
		case <-c.done:
			return
		case data = <-c.outbox:
		}
		err := writeText(conn, data)
		if err == nil {
			continue
		}
		c.log.Warn("Collector write failed", "error", err)
		select {
		case c.outbox <- data:
		default:
		}
		go c.redial(conn)
		return
	}
}

// listen forwards acks and drops any other frame.
func (c *connection) listen(conn *ws.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("Collector read failed", "error", err)
				go c.redial(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if json.Unmarshal(raw, &ack) != nil || ack.Type != streaming.TypeAck {
			c.log.Debug("Ignoring collector frame", "raw", string(raw))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.log.Debug("Ack backlog full", "for", ack.For)
		}
	}
}

// redial replaces failed with a fresh socket, backing off exponentially.
// pump and listen both report the same failure; the second call is a no-op.
func (c *connection) redial(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	_ = failed.Close()
	c.conn = nil
	c.mu.Unlock()

	wait := firstBackoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		conn, err := c.open()
		if err != nil {
			c.log.Warn("Collector redial failed", "attempt", attempt, "error", err)
			wait = min(wait*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		hello := c.hello
		c.mu.Unlock()

		if hello != nil {
			if err := writeText(conn, hello); err != nil {
				c.log.Warn("Collector hello replay failed", "error", err)
			}
		}
		c.log.Info("Collector connection restored", "attempt", attempt)
		c.attach(conn)
		return
	}
	c.log.Error("Giving up on collector", "attempts", maxRedials)
}

// send queues data without blocking and reports whether it fit.
func (c *connection) send(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
		c.log.Warn("Collector outbox full, dropping message")
		return false
	}
}

// sendAndWait queues data and waits for the collector to ack ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("no ack for %q within %s", ackFor, timeout)
		case <-c.done:
			return fmt.Errorf("connection closed before ack for %q", ackFor)
		}
	}
}

// close says goodbye at the protocol level and stops both goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return conn.Close()
}
