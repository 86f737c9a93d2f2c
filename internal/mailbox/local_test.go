package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocal_CreateKeyed(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(4)
	key := DeriveKey("/tmp", 'A')

	h1, err := l.Create(ctx, key)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	h2, err := l.Create(ctx, key)
	if err != nil {
		t.Fatalf("Create() second call error = %v", err)
	}
	if h1 != h2 {
		t.Errorf("Create() for same key = %v and %v, want same handle", h1, h2)
	}
	got, err := l.Open(ctx, key)
	if err != nil || got != h1 {
		t.Errorf("Open() = %v, %v; want %v, nil", got, err, h1)
	}
}

func TestLocal_CreatePrivate(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(4)

	h1, _ := l.Create(ctx, Private)
	h2, _ := l.Create(ctx, Private)
	if h1 == 0 || h2 == 0 {
		t.Fatalf("Create() returned zero handle: %v %v", h1, h2)
	}
	if h1 == h2 {
		t.Errorf("private channels share handle %v", h1)
	}
	if _, err := l.Open(ctx, Private); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(Private) error = %v, want ErrNotFound", err)
	}
}

func TestLocal_OpenUnknown(t *testing.T) {
	l := NewLocal(4)
	if _, err := l.Open(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestLocal_SendReceiveFIFO(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(8)
	h, _ := l.Create(ctx, Private)

	for _, m := range []string{"a", "b", "c"} {
		if err := l.Send(ctx, h, []byte(m)); err != nil {
			t.Fatalf("Send(%q) error = %v", m, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := l.Receive(ctx, h)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if string(got) != want {
			t.Errorf("Receive() = %q, want %q", got, want)
		}
	}
}

func TestLocal_SendCopiesMessage(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(1)
	h, _ := l.Create(ctx, Private)

	buf := []byte("hola")
	_ = l.Send(ctx, h, buf)
	buf[0] = 'X'

	got, _ := l.Receive(ctx, h)
	if string(got) != "hola" {
		t.Errorf("Receive() = %q, want %q", got, "hola")
	}
}

func TestLocal_SendErrors(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(1)
	h, _ := l.Create(ctx, Private)

	if err := l.Send(ctx, h, []byte("x")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := l.Send(ctx, h, []byte("y")); !errors.Is(err, ErrFull) {
		t.Errorf("Send() on full channel error = %v, want ErrFull", err)
	}
	if err := l.Send(ctx, 999, []byte("y")); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Send() to unknown handle error = %v, want ErrInvalidHandle", err)
	}
	big := make([]byte, MaxMessageSize+1)
	if err := l.Send(ctx, h, big); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Send() oversized error = %v, want ErrMessageTooLarge", err)
	}
	if n, _ := l.Len(h); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestLocal_ReceiveContextCancel(t *testing.T) {
	l := NewLocal(1)
	h, _ := l.Create(context.Background(), Private)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Receive(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive() error = %v, want DeadlineExceeded", err)
	}
}

func TestLocal_DestroyWakesReceiver(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(1)
	h, _ := l.Create(ctx, Private)

	errc := make(chan error, 1)
	go func() {
		_, err := l.Receive(ctx, h)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := l.Destroy(ctx, h); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrRemoved) {
			t.Errorf("Receive() error = %v, want ErrRemoved", err)
		}
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken by Destroy")
	}
}

func TestLocal_HandlesNotReused(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(1)
	h1, _ := l.Create(ctx, Private)
	_ = l.Destroy(ctx, h1)
	h2, _ := l.Create(ctx, Private)

	if h1 == h2 {
		t.Fatalf("handle %v reused after Destroy", h1)
	}
	if err := l.Send(ctx, h1, []byte("x")); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Send() to stale handle error = %v, want ErrInvalidHandle", err)
	}
	if err := l.Destroy(ctx, h1); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Destroy() twice error = %v, want ErrInvalidHandle", err)
	}
}

func TestLocal_DestroyForgetsKey(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(1)
	h, _ := l.Create(ctx, 7)
	_ = l.Destroy(ctx, h)

	if _, err := l.Open(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() after Destroy error = %v, want ErrNotFound", err)
	}
}

func TestLocal_Close(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(1)
	h, _ := l.Create(ctx, 7)
	_ = l.Close()

	if err := l.Send(ctx, h, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
	if _, err := l.Create(ctx, Private); !errors.Is(err, ErrClosed) {
		t.Errorf("Create() after Close error = %v, want ErrClosed", err)
	}
}

func TestDeriveKey(t *testing.T) {
	a := DeriveKey("/tmp", 'A')
	if a != DeriveKey("/tmp", 'A') {
		t.Error("DeriveKey() is not deterministic")
	}
	if a == Private {
		t.Error("DeriveKey() returned the private key")
	}
	if a == DeriveKey("/tmp", 'B') {
		t.Error("DeriveKey() ignores token")
	}
	if a == DeriveKey("/var", 'A') {
		t.Error("DeriveKey() ignores path")
	}
}

func TestPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrRemoved, true},
		{ErrInvalidHandle, true},
		{ErrClosed, true},
		{ErrFull, false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := Permanent(tt.err); got != tt.want {
			t.Errorf("Permanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
