package app

import (
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/mailbox"
)

type DeliveryAction int

const (
	NoAction DeliveryAction = iota
	EvictMember
)

func (a DeliveryAction) String() string {
	switch a {
	case EvictMember:
		return "evict"
	default:
		return "none"
	}
}

// Policy decides what happens to a member whose delivery failed during fan-out.
type Policy interface {
	OnDeliveryFailure(room string, member domain.Member, err error) DeliveryAction
}

// KeepPolicy logs and keeps the member. A full private channel or a stale
// handle never changes membership.
type KeepPolicy struct{}

func (KeepPolicy) OnDeliveryFailure(string, domain.Member, error) DeliveryAction {
	return NoAction
}

// EvictStalePolicy removes members whose private channel no longer exists.
// A full channel is treated as transient.
type EvictStalePolicy struct{}

func (EvictStalePolicy) OnDeliveryFailure(_ string, _ domain.Member, err error) DeliveryAction {
	if mailbox.Permanent(err) {
		return EvictMember
	}
	return NoAction
}
