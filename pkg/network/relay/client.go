package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// queueSize is the number of announcements buffered per peer.
const queueSize = 64

var errSelfConnection = errors.New("self connection")

// client sends announcements to a single peer.
type client struct {
	addr        string
	header      http.Header
	queue       chan []byte
	finished    chan struct{}
	limiter     *rate.Limiter
	log         *zap.Logger
	dialTimeout time.Duration
	sendTimeout time.Duration
	attempts    uint

	conn *websocket.Conn
}

func newClient(addr string, s config.Relay, id uuid.UUID, log *zap.Logger) *client {
	limit := rate.Inf
	if s.Rate > 0 {
		limit = rate.Limit(s.Rate)
	}
	burst := s.Burst
	if burst <= 0 {
		burst = 1
	}
	h := make(http.Header)
	h.Set(NodeIDHeader, id.String())
	return &client{
		addr:        addr,
		header:      h,
		queue:       make(chan []byte, queueSize),
		finished:    make(chan struct{}),
		limiter:     rate.NewLimiter(limit, burst),
		log:         log.With(zap.String("peer", addr)),
		dialTimeout: s.DialTimeout,
		sendTimeout: s.SendTimeout,
		attempts:    dialAttempts,
	}
}

// enqueue never blocks, it returns false if the queue is full.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}

func (c *client) run(ctx context.Context) {
	defer close(c.finished)
	for {
		select {
		case <-ctx.Done():
			c.disconnect()
			for {
				select {
				case <-c.queue:
				default:
					return
				}
			}
		case msg := <-c.queue:
			err := c.send(ctx, msg)
			if err == nil {
				sentCount.WithLabelValues("ok").Inc()
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			sentCount.WithLabelValues("failed").Inc()
			c.log.Warn("failed to send announcement", zap.Error(err))
		}
	}
}

func (c *client) send(ctx context.Context, msg []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout)); err != nil {
		c.disconnect()
		return err
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		c.disconnect()
		return err
	}
	return nil
}

func (c *client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	return retry.Do(func() error {
		ws, resp, err := dialer.DialContext(ctx, c.addr, c.header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusConflict {
				return errSelfConnection
			}
			return err
		}
		c.conn = ws
		// Control frames are only processed while reading.
		go func() {
			for {
				if _, _, err := ws.NextReader(); err != nil {
					return
				}
			}
		}()
		c.log.Debug("connected to peer")
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(dialDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errSelfConnection)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("dial failed", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
}

func (c *client) disconnect() {
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.sendTimeout))
	if err := c.conn.Close(); err != nil {
		c.log.Debug("failed to close connection", zap.Error(err))
	}
	c.conn = nil
}
