package domain

import (
	"errors"

	"github.com/dkeye/Relay/internal/mailbox"
)

var (
	ErrDuplicateMember = errors.New("member already in room")
	ErrRoomFull        = errors.New("room is full")
	ErrMemberNotFound  = errors.New("member not found")
)

// Member is one client's presence in a room: who it is and where replies go.
type Member struct {
	Name  string
	Reply mailbox.Handle
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(name string, reply mailbox.Handle) (Member, error) {
	if err := ValidateUsername(name); err != nil {
		return Member{}, err
	}
	return Member{Name: name, Reply: reply}, nil
}

// Same reports whether m is exactly the (name, reply) pair o.
func (m Member) Same(o Member) bool {
	return m.Name == o.Name && m.Reply == o.Reply
}
