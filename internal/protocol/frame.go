// Package protocol defines the fixed-size frame exchanged between chat
// clients and the relay over mailbox channels.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Relay/internal/mailbox"
)

// Field sizes include the NUL terminator.
const (
	NameSize = 50
	TextSize = 256

	MaxNameLen = NameSize - 1
	MaxTextLen = TextSize - 1

	// FrameSize is the encoded size of every frame.
	//
	//	┌────────┬──────────┬───────────┬──────────┬─────────────┐
	//	│ kind   │ sender   │ text      │ room     │ replyHandle │
	//	│ int32  │ 50 bytes │ 256 bytes │ 50 bytes │ int32       │
	//	└────────┴──────────┴───────────┴──────────┴─────────────┘
	//
	// Integers are big-endian.
	FrameSize = offReply + 4
)

const (
	offSender = 4
	offText   = offSender + NameSize
	offRoom   = offText + TextSize
	offReply  = offRoom + NameSize
)

// ServerLabel is the sender of every RESPONSE frame.
const ServerLabel = "SERVER"

// Kind identifies the type of frame.
type Kind int32

const (
	Join     Kind = 1
	Response Kind = 2
	Chat     Kind = 3
	Leave    Kind = 4
)

func (k Kind) String() string {
	switch k {
	case Join:
		return "JOIN"
	case Response:
		return "RESPONSE"
	case Chat:
		return "CHAT"
	case Leave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) Valid() bool { return k >= Join && k <= Leave }

var (
	ErrFrameSize    = errors.New("protocol: wrong frame size")
	ErrUnknownKind  = errors.New("protocol: unknown frame kind")
	ErrFieldTooLong = errors.New("too long")
	ErrFieldEmpty   = errors.New("empty")
	ErrEmbeddedNUL  = errors.New("contains NUL")
	ErrUnterminated = errors.New("not terminated")
	ErrMissingReply = errors.New("protocol: missing reply handle")
)

// FieldError reports which field failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("protocol: field %s: %v", e.Field, e.Err) }
func (e *FieldError) Unwrap() error { return e.Err }

// Frame is one protocol record. Frames are values; the transport copies them.
type Frame struct {
	Kind   Kind
	Sender string
	Text   string
	Room   string
	// Reply is the sender's private channel. Zero on server to client frames.
	Reply mailbox.Handle
}

func NewJoin(user, room string, reply mailbox.Handle) Frame {
	return Frame{Kind: Join, Sender: user, Room: room, Reply: reply}
}

func NewChat(user, room, text string, reply mailbox.Handle) Frame {
	return Frame{Kind: Chat, Sender: user, Room: room, Text: text, Reply: reply}
}

func NewLeave(user, room string, reply mailbox.Handle) Frame {
	return Frame{Kind: Leave, Sender: user, Room: room, Reply: reply}
}

func NewResponse(text string) Frame {
	return Frame{Kind: Response, Sender: ServerLabel, Text: text}
}

// Validate checks field bounds and the kind tag.
func (f Frame) Validate() error {
	if !f.Kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, f.Kind)
	}
	if err := checkField("sender", f.Sender, MaxNameLen); err != nil {
		return err
	}
	if err := checkField("text", f.Text, MaxTextLen); err != nil {
		return err
	}
	return checkField("room", f.Room, MaxNameLen)
}

// ValidateRequest checks what the relay needs from a client request:
// a sender, a room and a reply handle.
func (f Frame) ValidateRequest() error {
	if err := f.Validate(); err != nil {
		return err
	}
	switch f.Kind {
	case Join, Chat, Leave:
	default:
		return fmt.Errorf("%w: %s is not a request", ErrUnknownKind, f.Kind)
	}
	if f.Sender == "" {
		return &FieldError{Field: "sender", Err: ErrFieldEmpty}
	}
	if f.Room == "" {
		return &FieldError{Field: "room", Err: ErrFieldEmpty}
	}
	if f.Reply <= 0 {
		return ErrMissingReply
	}
	return nil
}

// MarshalBinary encodes f into exactly FrameSize bytes.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, FrameSize)
	binary.BigEndian.PutUint32(buf[0:offSender], uint32(f.Kind))
	copy(buf[offSender:offText], f.Sender)
	copy(buf[offText:offRoom], f.Text)
	copy(buf[offRoom:offReply], f.Room)
	binary.BigEndian.PutUint32(buf[offReply:], uint32(f.Reply))
	return buf, nil
}

// Decode parses one frame. Every string field must be NUL terminated.
func Decode(data []byte) (Frame, error) {
	if len(data) != FrameSize {
		return Frame{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(data), FrameSize)
	}
	var f Frame
	f.Kind = Kind(int32(binary.BigEndian.Uint32(data[0:offSender])))
	if !f.Kind.Valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownKind, f.Kind)
	}
	var err error
	if f.Sender, err = cString("sender", data[offSender:offText]); err != nil {
		return Frame{}, err
	}
	if f.Text, err = cString("text", data[offText:offRoom]); err != nil {
		return Frame{}, err
	}
	if f.Room, err = cString("room", data[offRoom:offReply]); err != nil {
		return Frame{}, err
	}
	f.Reply = mailbox.Handle(int32(binary.BigEndian.Uint32(data[offReply:])))
	return f, nil
}

func checkField(name, v string, limit int) error {
	if len(v) > limit {
		return &FieldError{Field: name, Err: ErrFieldTooLong}
	}
	if strings.IndexByte(v, 0) >= 0 {
		return &FieldError{Field: name, Err: ErrEmbeddedNUL}
	}
	return nil
}

func cString(name string, b []byte) (string, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", &FieldError{Field: name, Err: ErrUnterminated}
	}
	return string(b[:i]), nil
}
