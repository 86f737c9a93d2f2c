package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Relay/internal/mailbox"
)

type fakeWS struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
	in      chan []byte
}

func newFakeWS() *fakeWS { return &fakeWS{in: make(chan []byte, 8)} }

func (f *fakeWS) ReadMessage() (int, []byte, error) {
	b, ok := <-f.in
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, b, nil
}

func (f *fakeWS) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWS) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeWS) responses(t *testing.T, n int) []response {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := len(f.written)
		f.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]response, 0, len(f.written))
	for _, b := range f.written {
		var r response
		if err := json.Unmarshal(b, &r); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		out = append(out, r)
	}
	if len(out) < n {
		t.Fatalf("got %d responses, want %d", len(out), n)
	}
	return out
}

func TestConn_TrySendBackpressure(t *testing.T) {
	c := newConn("c1", newFakeWS())
	for i := 0; i < sendBuffer; i++ {
		if err := c.TrySend([]byte("x")); err != nil {
			t.Fatalf("TrySend() #%d error = %v", i, err)
		}
	}
	if err := c.TrySend([]byte("x")); !errors.Is(err, ErrBackpressure) {
		t.Errorf("TrySend() on full buffer error = %v, want ErrBackpressure", err)
	}
	c.Close()
	if err := c.TrySend([]byte("x")); err == nil {
		t.Error("TrySend() after Close returned nil")
	}
}

func TestController_PumpsWithFakeConn(t *testing.T) {
	sys := mailbox.NewLocal(4)
	ctl := NewController(sys)
	ws := newFakeWS()
	cn := newConn("c1", ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctl.writePump(ctx, cn)
	done := make(chan struct{})
	go func() {
		ctl.readPump(ctx, cancel, cn)
		close(done)
	}()

	ws.in <- []byte(`{"id":1,"op":"create"}`)
	ws.in <- []byte(`{"id":2,"op":"bogus"}`)
	ws.in <- []byte(`not json`)

	rs := ws.responses(t, 3)
	if rs[0].ID != 1 || rs[0].Error != "" || rs[0].Handle == 0 {
		t.Errorf("create response = %+v", rs[0])
	}
	if rs[1].ID != 2 || rs[1].Error != "bad_request" {
		t.Errorf("bogus response = %+v", rs[1])
	}
	if rs[2].Error != "bad_request" {
		t.Errorf("malformed response = %+v", rs[2])
	}

	close(ws.in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readPump did not exit on EOF")
	}
	if err := sys.Send(context.Background(), rs[0].Handle, []byte("x")); !errors.Is(err, mailbox.ErrInvalidHandle) {
		t.Errorf("private channel survived disconnect: %v", err)
	}
}
