package protocol

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/Relay/internal/mailbox"
)

func TestFrameSize(t *testing.T) {
	if FrameSize != 364 {
		t.Errorf("FrameSize = %d, want 364", FrameSize)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Join, "JOIN"},
		{Response, "RESPONSE"},
		{Chat, "CHAT"},
		{Leave, "LEAVE"},
		{Kind(0), "UNKNOWN"},
		{Kind(9), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int32(tt.kind), got, tt.want)
		}
	}
}

func TestFrameEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"join", NewJoin("alice", "general", 3)},
		{"chat", NewChat("alice", "general", "hola", 3)},
		{"leave", NewLeave("bob", "general", 4)},
		{"response", NewResponse("Te has unido a la sala: general")},
		{"max lengths", NewChat(strings.Repeat("u", MaxNameLen), strings.Repeat("r", MaxNameLen), strings.Repeat("t", MaxTextLen), mailbox.Handle(1<<30))},
		{"utf8", NewChat("José", "café", "¿qué tal?", 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.frame.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary() error = %v", err)
			}
			if len(data) != FrameSize {
				t.Fatalf("len(data) = %d, want %d", len(data), FrameSize)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.frame {
				t.Errorf("Decode() = %+v, want %+v", got, tt.frame)
			}
		})
	}
}

func TestFrame_Layout(t *testing.T) {
	data, err := NewJoin("al", "rm", 258).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if k := binary.BigEndian.Uint32(data[0:4]); k != 1 {
		t.Errorf("kind = %d, want 1", k)
	}
	if string(data[4:6]) != "al" || data[6] != 0 {
		t.Errorf("sender bytes = %q", data[4:7])
	}
	if string(data[310:312]) != "rm" {
		t.Errorf("room bytes = %q", data[310:312])
	}
	if h := binary.BigEndian.Uint32(data[360:364]); h != 258 {
		t.Errorf("reply = %d, want 258", h)
	}
}

func TestFrame_MarshalErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		field string
		want  error
	}{
		{"sender too long", NewJoin(strings.Repeat("u", MaxNameLen+1), "r", 1), "sender", ErrFieldTooLong},
		{"room too long", NewJoin("u", strings.Repeat("r", MaxNameLen+1), 1), "room", ErrFieldTooLong},
		{"text too long", NewChat("u", "r", strings.Repeat("t", MaxTextLen+1), 1), "text", ErrFieldTooLong},
		{"embedded nul", NewChat("u", "r", "a\x00b", 1), "text", ErrEmbeddedNUL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.frame.MarshalBinary()
			if !errors.Is(err, tt.want) {
				t.Fatalf("MarshalBinary() error = %v, want %v", err, tt.want)
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != tt.field {
				t.Errorf("MarshalBinary() field = %v, want %q", err, tt.field)
			}
		})
	}

	if _, err := (Frame{Kind: 7, Sender: "u"}).MarshalBinary(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("MarshalBinary() unknown kind error = %v, want ErrUnknownKind", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	valid, _ := NewJoin("u", "r", 1).MarshalBinary()

	if _, err := Decode(valid[:100]); !errors.Is(err, ErrFrameSize) {
		t.Errorf("Decode(short) error = %v, want ErrFrameSize", err)
	}

	bad := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(bad[0:4], 99)
	if _, err := Decode(bad); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Decode(kind 99) error = %v, want ErrUnknownKind", err)
	}

	bad = append([]byte(nil), valid...)
	for i := offSender; i < offText; i++ {
		bad[i] = 'x'
	}
	if _, err := Decode(bad); !errors.Is(err, ErrUnterminated) {
		t.Errorf("Decode(unterminated sender) error = %v, want ErrUnterminated", err)
	}
}

func TestFrame_ValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr error
	}{
		{"join", NewJoin("u", "r", 1), nil},
		{"chat", NewChat("u", "r", "hi", 1), nil},
		{"leave", NewLeave("u", "r", 1), nil},
		{"response is not a request", NewResponse("x"), ErrUnknownKind},
		{"empty sender", NewJoin("", "r", 1), ErrFieldEmpty},
		{"empty room", NewChat("u", "", "hi", 1), ErrFieldEmpty},
		{"no reply", NewJoin("u", "r", 0), ErrMissingReply},
		{"negative reply", NewLeave("u", "r", -2), ErrMissingReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.ValidateRequest()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRequest() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
