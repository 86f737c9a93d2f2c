package ipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/mailbox"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client is a mailbox.System served by a remote Controller. When the
// connection drops every pending and later call fails with mailbox.ErrClosed.
type Client struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration

	mu      sync.Mutex
	next    uint64
	pending map[uint64]chan response

	done      chan struct{}
	closeOnce sync.Once
}

var _ mailbox.System = (*Client)(nil)

func Dial(ctx context.Context, url string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		ws:           ws,
		writeTimeout: DefaultWriteTimeout,
		pending:      make(map[uint64]chan response),
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Create(ctx context.Context, key mailbox.Key) (mailbox.Handle, error) {
	resp, err := c.call(ctx, request{Op: opCreate, Key: key})
	return resp.Handle, err
}

func (c *Client) Open(ctx context.Context, key mailbox.Key) (mailbox.Handle, error) {
	resp, err := c.call(ctx, request{Op: opOpen, Key: key})
	return resp.Handle, err
}

func (c *Client) Send(ctx context.Context, h mailbox.Handle, msg []byte) error {
	if len(msg) > mailbox.MaxMessageSize {
		return mailbox.ErrMessageTooLarge
	}
	_, err := c.call(ctx, request{Op: opSend, Handle: h, Data: msg})
	return err
}

func (c *Client) Receive(ctx context.Context, h mailbox.Handle) ([]byte, error) {
	resp, err := c.call(ctx, request{Op: opReceive, Handle: h})
	return resp.Data, err
}

func (c *Client) Destroy(ctx context.Context, h mailbox.Handle) error {
	_, err := c.call(ctx, request{Op: opDestroy, Handle: h})
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, request{Op: opPing})
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) call(ctx context.Context, req request) (response, error) {
	ch := make(chan response, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return response{}, mailbox.ErrClosed
	default:
	}
	c.next++
	req.ID = c.next
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.write(req); err != nil {
		c.forget(req.ID)
		log.Debug().Err(err).Str("module", "ipc.client").Str("op", req.Op).Msg("write failed")
		c.shutdown()
		return response{}, mailbox.ErrClosed
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, errOf(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(req.ID)
		if req.Op == opReceive {
			_ = c.write(request{Op: opCancel, Target: req.ID})
		}
		return response{}, ctx.Err()
	case <-c.done:
		return response{}, mailbox.ErrClosed
	}
}

func (c *Client) write(req request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(req)
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var resp response
		if err := c.ws.ReadJSON(&resp); err != nil {
			select {
			case <-c.done:
			default:
				log.Debug().Err(err).Str("module", "ipc.client").Msg("connection lost")
			}
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}
