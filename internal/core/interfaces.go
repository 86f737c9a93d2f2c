// Package core holds the room registry. It is owned by a single goroutine
// and never touches transport resources beyond the Deliver callback.
package core

import "github.com/dkeye/Relay/internal/domain"

// Deliver hands one frame to one member. It must not block.
type Deliver func(m domain.Member) error

// Dropped is a member whose delivery failed during fan-out.
type Dropped struct {
	Member domain.Member
	Err    error
}

// PublishResult reports delivery stats to the router.
type PublishResult struct {
	SentTo  int
	Dropped []Dropped
}
