package ipc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Relay/internal/mailbox"
)

const (
	opCreate  = "create"
	opOpen    = "open"
	opSend    = "send"
	opReceive = "receive"
	opCancel  = "cancel"
	opDestroy = "destroy"
	opPing    = "ping"
)

var (
	ErrBackpressure = errors.New("ipc: backpressure")
	ErrRateLimited  = errors.New("ipc: rate limited")
	ErrBadRequest   = errors.New("ipc: bad request")
	ErrForbidden    = errors.New("ipc: operation not allowed on this handle")
)

type request struct {
	ID     uint64         `json:"id"`
	Op     string         `json:"op"`
	Key    mailbox.Key    `json:"key,omitempty"`
	Handle mailbox.Handle `json:"handle,omitempty"`
	Target uint64         `json:"target,omitempty"`
	Data   []byte         `json:"data,omitempty"`
}

type response struct {
	ID     uint64         `json:"id"`
	Handle mailbox.Handle `json:"handle,omitempty"`
	Data   []byte         `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

var codes = []struct {
	code string
	err  error
}{
	{"full", mailbox.ErrFull},
	{"invalid_handle", mailbox.ErrInvalidHandle},
	{"removed", mailbox.ErrRemoved},
	{"not_found", mailbox.ErrNotFound},
	{"too_large", mailbox.ErrMessageTooLarge},
	{"closed", mailbox.ErrClosed},
	{"rate_limited", ErrRateLimited},
	{"bad_request", ErrBadRequest},
	{"forbidden", ErrForbidden},
	{"canceled", context.Canceled},
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

func errOf(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return fmt.Errorf("ipc: remote error %q", code)
}
