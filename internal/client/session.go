// Package client is the chat side of the relay: a Session that sends
// requests on the global channel and drains its own private channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/mailbox"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReceiveBackoff = 100 * time.Millisecond
	// warnAfter consecutive receive failures are reported once.
	warnAfter = 5
)

var (
	ErrNotInRoom         = errors.New("not in any room")
	ErrServerUnavailable = errors.New("relay is not running")
)

// Renderer shows incoming frames to the user.
type Renderer interface {
	Chat(sender, text string)
	Status(label, text string)
}

// Session is one chat user. The current room is a local, optimistic view:
// it changes as soon as a request is enqueued and is never rolled back when
// the relay rejects it.
type Session struct {
	sys     mailbox.System
	user    string
	global  mailbox.Handle
	private mailbox.Handle
	backoff time.Duration

	mu     sync.RWMutex
	room   string
	closed bool
}

type Option func(*Session)

func WithReceiveBackoff(d time.Duration) Option { return func(s *Session) { s.backoff = d } }

// NewSession opens the relay's global channel and creates a private one.
func NewSession(ctx context.Context, sys mailbox.System, key mailbox.Key, user string, opts ...Option) (*Session, error) {
	if err := domain.ValidateUsername(user); err != nil {
		return nil, err
	}
	global, err := sys.Open(ctx, key)
	if err != nil {
		if errors.Is(err, mailbox.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrServerUnavailable, err)
		}
		return nil, fmt.Errorf("open global channel: %w", err)
	}
	private, err := sys.Create(ctx, mailbox.Private)
	if err != nil {
		return nil, fmt.Errorf("create private channel: %w", err)
	}
	s := &Session{
		sys:     sys,
		user:    user,
		global:  global,
		private: private,
		backoff: DefaultReceiveBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Debug().Str("module", "client").Str("user", user).Stringer("global", global).Stringer("private", private).Msg("session started")
	return s, nil
}

func (s *Session) User() string            { return s.user }
func (s *Session) Private() mailbox.Handle { return s.private }

func (s *Session) CurrentRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Join asks the relay to add the user to room and records it as the current
// room right away. A previous room is left first.
func (s *Session) Join(ctx context.Context, room string) error {
	if err := domain.ValidateRoomName(room); err != nil {
		return err
	}
	if prev := s.CurrentRoom(); prev != "" && prev != room {
		if err := s.send(ctx, protocol.NewLeave(s.user, prev, s.private)); err != nil {
			return err
		}
	}
	if err := s.send(ctx, protocol.NewJoin(s.user, room, s.private)); err != nil {
		return err
	}
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
	return nil
}

// Leave asks the relay to drop the user from the current room. The local
// room is cleared even if the request could not be sent.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	room := s.room
	s.room = ""
	s.mu.Unlock()
	if room == "" {
		return ErrNotInRoom
	}
	return s.send(ctx, protocol.NewLeave(s.user, room, s.private))
}

// Send posts text to the current room.
func (s *Session) Send(ctx context.Context, text string) error {
	room := s.CurrentRoom()
	if room == "" {
		return ErrNotInRoom
	}
	return s.send(ctx, protocol.NewChat(s.user, room, text, s.private))
}

func (s *Session) send(ctx context.Context, f protocol.Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.sys.Send(ctx, s.global, data); err != nil {
		if errors.Is(err, mailbox.ErrInvalidHandle) || errors.Is(err, mailbox.ErrRemoved) {
			return fmt.Errorf("%w: %w", ErrServerUnavailable, err)
		}
		return fmt.Errorf("send %s: %w", f.Kind, err)
	}
	return nil
}

// Receive drains the private channel into r until ctx is done or the
// session is closed. Transient failures are retried after a short pause.
func (s *Session) Receive(ctx context.Context, r Renderer) error {
	failures := 0
	for {
		data, err := s.sys.Receive(ctx, s.private)
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			if mailbox.Permanent(err) {
				return fmt.Errorf("receive: %w", err)
			}
			failures++
			if failures == warnAfter {
				log.Warn().Err(err).Str("module", "client").Int("failures", failures).Msg("receive keeps failing")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.backoff):
			}
			continue
		}
		failures = 0

		f, err := protocol.Decode(data)
		if err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("malformed frame ignored")
			continue
		}
		switch f.Kind {
		case protocol.Chat:
			r.Chat(f.Sender, f.Text)
		case protocol.Response:
			r.Status(protocol.ServerLabel, f.Text)
		default:
			log.Debug().Str("module", "client").Stringer("kind", f.Kind).Msg("frame ignored")
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close leaves the current room on a best-effort basis and destroys the
// private channel. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	room := s.room
	s.room = ""
	s.mu.Unlock()

	if room != "" {
		if err := s.send(ctx, protocol.NewLeave(s.user, room, s.private)); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("room", room).Msg("leave on close")
		}
	}
	if err := s.sys.Destroy(ctx, s.private); err != nil {
		return fmt.Errorf("destroy private channel: %w", err)
	}
	return nil
}
