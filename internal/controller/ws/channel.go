package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/qrunner/internal/core/job"
	"github.com/viperadnan-git/qrunner/internal/core/notify"
)

const (
	DefaultSendBuffer   = 32
	DefaultWriteTimeout = 10 * time.Second
)

// UndeliveredFunc receives the messages a channel accepted but failed to
// write, in order.
type UndeliveredFunc func(c *Channel, msgs []job.Message)

// Channel is a notify.Channel backed by a websocket connection. Send only
// queues; a single writer goroutine owns every write to the connection and
// sends a close frame once the channel is closed and drained. When a write
// fails, that message and everything queued behind it go to undelivered.
type Channel struct {
	conn         *websocket.Conn
	jobID        string
	writeTimeout time.Duration
	undelivered  UndeliveredFunc

	mu     sync.Mutex
	out    chan job.Message
	closed bool

	done chan struct{}
}

func NewChannel(conn *websocket.Conn, jobID string, buffer int, writeTimeout time.Duration, undelivered UndeliveredFunc) *Channel {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	c := &Channel{
		conn:         conn,
		jobID:        jobID,
		writeTimeout: writeTimeout,
		undelivered:  undelivered,
		out:          make(chan job.Message, buffer),
		done:         make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Channel) Send(msg job.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return notify.ErrChannelClosed
	}
	select {
	case c.out <- msg:
		return nil
	default:
		return notify.ErrSlowConsumer
	}
}

// Close stops accepting messages. Queued messages are still written before
// the connection is closed.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.out)
	}
	return nil
}

// Done is closed once the connection has been torn down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) writeLoop() {
	defer close(c.done)
	defer c.conn.Close()

	var lost []job.Message
	for msg := range c.out {
		if lost != nil {
			lost = append(lost, msg)
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Str("job_id", c.jobID).Str("status", string(msg.Status)).Msg("websocket write failed")
			lost = []job.Message{msg}
			_ = c.Close()
		}
	}
	if lost != nil {
		if c.undelivered != nil {
			c.undelivered(c, lost)
		}
		return
	}
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
