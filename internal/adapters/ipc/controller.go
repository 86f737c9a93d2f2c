// Package ipc carries mailbox operations between processes over a websocket.
// The relay serves its mailbox.System with a Controller; clients reach it
// through a Client, which is itself a mailbox.System.
package ipc

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/mailbox"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWriteTimeout = 5 * time.Second
	sendBuffer          = 64
	readLimit           = 32 << 10
)

type Controller struct {
	sys          mailbox.System
	limiter      *RateLimiter
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

type Option func(*Controller)

func WithRateLimit(limit int, interval time.Duration) Option {
	return func(ctl *Controller) { ctl.limiter = NewRateLimiter(limit, interval) }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(ctl *Controller) { ctl.writeTimeout = d }
}

func NewController(sys mailbox.System, opts ...Option) *Controller {
	ctl := &Controller{
		sys:          sys,
		writeTimeout: DefaultWriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl
}

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// conn is one connected process. Private channels it creates are owned by
// it and destroyed when it disconnects.
type conn struct {
	id   string
	ws   WSConn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	owned  map[mailbox.Handle]struct{}
	waits  map[uint64]context.CancelFunc
}

func newConn(id string, ws WSConn) *conn {
	return &conn{
		id:    id,
		ws:    ws,
		send:  make(chan []byte, sendBuffer),
		owned: make(map[mailbox.Handle]struct{}),
		waits: make(map[uint64]context.CancelFunc),
	}
}

func (c *conn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	for _, cancel := range c.waits {
		cancel()
	}
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (c *conn) own(h mailbox.Handle) {
	c.mu.Lock()
	c.owned[h] = struct{}{}
	c.mu.Unlock()
}

func (c *conn) disown(h mailbox.Handle) {
	c.mu.Lock()
	delete(c.owned, h)
	c.mu.Unlock()
}

func (c *conn) owns(h mailbox.Handle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.owned[h]
	return ok
}

func (c *conn) takeOwned() []mailbox.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]mailbox.Handle, 0, len(c.owned))
	for h := range c.owned {
		out = append(out, h)
	}
	c.owned = make(map[mailbox.Handle]struct{})
	return out
}

func (c *conn) addWait(id uint64, cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.waits[id] = cancel
	return true
}

func (c *conn) removeWait(id uint64) {
	c.mu.Lock()
	delete(c.waits, id)
	c.mu.Unlock()
}

func (c *conn) cancelWait(id uint64) {
	c.mu.Lock()
	cancel, ok := c.waits[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// Handle upgrades the request and serves mailbox operations until the peer
// disconnects or ctx is done.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	id := c.GetString("conn_id")
	if id == "" {
		id = uuid.NewString()
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ipc").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(readLimit)
	log.Info().Str("module", "ipc").Str("conn", id).Str("remote", c.ClientIP()).Msg("new mailbox connection")

	cn := newConn(id, ws)
	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cn)
	go ctl.readPump(ctx, cancel, cn)
}

func (ctl *Controller) release(c *conn) {
	for _, h := range c.takeOwned() {
		if err := ctl.sys.Destroy(context.Background(), h); err != nil && !errors.Is(err, mailbox.ErrInvalidHandle) {
			log.Warn().Err(err).Str("module", "ipc").Str("conn", c.id).Stringer("handle", h).Msg("destroy on disconnect")
			continue
		}
		log.Debug().Str("module", "ipc").Str("conn", c.id).Stringer("handle", h).Msg("private channel released")
	}
	if ctl.limiter != nil {
		ctl.limiter.Forget(c.id)
	}
}
