package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Relay/internal/mailbox"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *conn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "ipc").Str("conn", c.id).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(ctl.writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ipc").Str("conn", c.id).Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ipc").Str("conn", c.id).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *conn) {
	defer func() {
		log.Info().Str("module", "ipc").Str("conn", c.id).Msg("mailbox connection closed")
		cancel()
		c.Close()
		ctl.release(c)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "ipc").Str("conn", c.id).Msg("readPump read error")
			}
			return
		}
		ctl.handleRequest(ctx, c, data)
	}
}

func (ctl *Controller) handleRequest(ctx context.Context, c *conn, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Warn().Err(err).Str("module", "ipc").Str("conn", c.id).Msg("bad json")
		ctl.reply(c, response{}, ErrBadRequest)
		return
	}

	resp := response{ID: req.ID}
	var err error
	switch req.Op {
	case opCreate:
		if req.Key != mailbox.Private {
			err = ErrForbidden
			break
		}
		if resp.Handle, err = ctl.sys.Create(ctx, mailbox.Private); err == nil {
			c.own(resp.Handle)
		}
	case opOpen:
		resp.Handle, err = ctl.sys.Open(ctx, req.Key)
	case opSend:
		if ctl.limiter != nil && !ctl.limiter.Allow(c.id) {
			err = ErrRateLimited
			break
		}
		err = ctl.sys.Send(ctx, req.Handle, req.Data)
	case opReceive:
		if !c.owns(req.Handle) {
			err = ErrForbidden
			break
		}
		go ctl.receive(ctx, c, req)
		return
	case opCancel:
		c.cancelWait(req.Target)
		return
	case opDestroy:
		if !c.owns(req.Handle) {
			err = ErrForbidden
			break
		}
		if err = ctl.sys.Destroy(ctx, req.Handle); err == nil {
			c.disown(req.Handle)
		}
	case opPing:
	default:
		log.Warn().Str("module", "ipc").Str("conn", c.id).Str("op", req.Op).Msg("unknown op")
		err = ErrBadRequest
	}
	ctl.reply(c, resp, err)
}

func (ctl *Controller) receive(ctx context.Context, c *conn, req request) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !c.addWait(req.ID, cancel) {
		return
	}
	defer c.removeWait(req.ID)

	data, err := ctl.sys.Receive(rctx, req.Handle)
	if err != nil && ctx.Err() != nil {
		return
	}
	ctl.reply(c, response{ID: req.ID, Handle: req.Handle, Data: data}, err)
}

func (ctl *Controller) reply(c *conn, resp response, err error) {
	resp.Error = codeOf(err)
	b, mErr := json.Marshal(resp)
	if mErr != nil {
		log.Error().Err(mErr).Str("module", "ipc").Msg("reply marshal")
		return
	}
	if sErr := c.TrySend(b); sErr != nil {
		if errors.Is(sErr, ErrBackpressure) {
			log.Warn().Str("module", "ipc").Str("conn", c.id).Msg("peer too slow, closing")
			c.Close()
		}
	}
}
