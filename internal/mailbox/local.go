package mailbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultCapacity is the number of queued messages a channel holds before Send fails.
const DefaultCapacity = 64

type queue struct {
	key  Key
	msgs chan []byte
	done chan struct{}
}

// Local is an in-process System. Handles are allocated monotonically and
// never reused, so a handle that outlives its channel always fails.
type Local struct {
	mu       sync.RWMutex
	queues   map[Handle]*queue
	byKey    map[Key]Handle
	next     Handle
	capacity int
	closed   bool
}

func NewLocal(capacity int) *Local {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Local{
		queues:   make(map[Handle]*queue),
		byKey:    make(map[Key]Handle),
		capacity: capacity,
	}
}

// Create returns a fresh channel for Private, otherwise the channel bound to
// key, creating it when missing.
func (l *Local) Create(_ context.Context, key Key) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	if key != Private {
		if h, ok := l.byKey[key]; ok {
			return h, nil
		}
	}
	l.next++
	h := l.next
	l.queues[h] = &queue{
		key:  key,
		msgs: make(chan []byte, l.capacity),
		done: make(chan struct{}),
	}
	if key != Private {
		l.byKey[key] = h
	}
	log.Debug().Str("module", "mailbox").Stringer("handle", h).Uint32("key", uint32(key)).Msg("channel created")
	return h, nil
}

func (l *Local) Open(_ context.Context, key Key) (Handle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, ErrClosed
	}
	if key == Private {
		return 0, ErrNotFound
	}
	h, ok := l.byKey[key]
	if !ok {
		return 0, ErrNotFound
	}
	return h, nil
}

func (l *Local) Send(_ context.Context, h Handle, msg []byte) error {
	if len(msg) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	q, ok := l.queues[h]
	if !ok {
		return ErrInvalidHandle
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	select {
	case q.msgs <- cp:
		return nil
	default:
		return ErrFull
	}
}

func (l *Local) Receive(ctx context.Context, h Handle) ([]byte, error) {
	l.mu.RLock()
	q, ok := l.queues[h]
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, ErrInvalidHandle
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrRemoved
	case msg := <-q.msgs:
		select {
		case <-q.done:
			return nil, ErrRemoved
		default:
		}
		return msg, nil
	}
}

// Destroy removes the channel, discarding queued messages and waking every
// blocked receiver with ErrRemoved.
func (l *Local) Destroy(_ context.Context, h Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.queues[h]
	if !ok {
		return ErrInvalidHandle
	}
	l.remove(h, q)
	log.Debug().Str("module", "mailbox").Stringer("handle", h).Msg("channel destroyed")
	return nil
}

// Len reports how many messages are queued on h.
func (l *Local) Len(h Handle) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q, ok := l.queues[h]
	if !ok {
		return 0, ErrInvalidHandle
	}
	return len(q.msgs), nil
}

// Close destroys every channel. Later calls fail with ErrClosed.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	for h, q := range l.queues {
		l.remove(h, q)
	}
	l.closed = true
	return nil
}

func (l *Local) remove(h Handle, q *queue) {
	delete(l.queues, h)
	if q.key != Private && l.byKey[q.key] == h {
		delete(l.byKey, q.key)
	}
	close(q.done)
}
