// Package mailbox models bounded FIFO channels of fixed-size frames addressed
// by numeric handles. A System is the kernel that owns those channels.
package mailbox

import (
	"context"
	"errors"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Handle addresses one channel. Zero is never a valid handle.
type Handle int32

func (h Handle) String() string { return strconv.Itoa(int(h)) }

// Key is a well-known name under which a channel can be found by other processes.
type Key uint32

// Private asks Create for a fresh anonymous channel.
const Private Key = 0

// MaxMessageSize bounds a single message.
const MaxMessageSize = 4096

var (
	ErrFull            = errors.New("mailbox: channel full")
	ErrInvalidHandle   = errors.New("mailbox: invalid handle")
	ErrRemoved         = errors.New("mailbox: channel removed")
	ErrNotFound        = errors.New("mailbox: no channel for key")
	ErrMessageTooLarge = errors.New("mailbox: message too large")
	ErrClosed          = errors.New("mailbox: system closed")
)

// System is the channel primitive shared by server and clients.
//
// Send never blocks: it fails with ErrFull when the channel is at capacity.
// Receive blocks until a message arrives, ctx is done, or the channel is
// destroyed (ErrRemoved).
type System interface {
	Create(ctx context.Context, key Key) (Handle, error)
	Open(ctx context.Context, key Key) (Handle, error)
	Send(ctx context.Context, h Handle, msg []byte) error
	Receive(ctx context.Context, h Handle) ([]byte, error)
	Destroy(ctx context.Context, h Handle) error
}

// DeriveKey maps a path and a one-byte token to a stable non-private key.
func DeriveKey(path string, token byte) Key {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.Write([]byte{token})
	k := Key(d.Sum64())
	if k == Private {
		k = 1
	}
	return k
}

// Permanent reports whether err means the channel or the system is gone for good.
func Permanent(err error) bool {
	return errors.Is(err, ErrRemoved) || errors.Is(err, ErrInvalidHandle) || errors.Is(err, ErrClosed)
}
