package core

import (
	"fmt"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxRooms   = 10
	DefaultMaxMembers = 50
)

// Registry is the table of rooms. Rooms are kept in creation order and live
// until the registry is dropped; an empty room is not removed.
//
// Registry is not safe for concurrent use. The router owns it.
type Registry struct {
	rooms      []*room
	maxRooms   int
	maxMembers int
}

func NewRegistry(maxRooms, maxMembers int) *Registry {
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRooms
	}
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	return &Registry{maxRooms: maxRooms, maxMembers: maxMembers}
}

func (r *Registry) MaxRooms() int   { return r.maxRooms }
func (r *Registry) MaxMembers() int { return r.maxMembers }

// Len is the number of rooms.
func (r *Registry) Len() int { return len(r.rooms) }

// MemberCount is the number of memberships across all rooms.
func (r *Registry) MemberCount() int {
	n := 0
	for _, rm := range r.rooms {
		n += len(rm.members)
	}
	return n
}

// FindRoom returns the index of the room with exactly this name.
func (r *Registry) FindRoom(name string) (int, bool) {
	for i, rm := range r.rooms {
		if rm.name == name {
			return i, true
		}
	}
	return -1, false
}

func (r *Registry) CreateRoom(name string) (int, error) {
	if err := domain.ValidateRoomName(name); err != nil {
		return -1, err
	}
	if _, ok := r.FindRoom(name); ok {
		return -1, domain.ErrRoomExists
	}
	if len(r.rooms) >= r.maxRooms {
		return -1, domain.ErrRegistryFull
	}
	r.rooms = append(r.rooms, newRoom(name, r.maxMembers))
	log.Info().Str("module", "core.registry").Str("room", name).Int("rooms", len(r.rooms)).Msg("room created")
	return len(r.rooms) - 1, nil
}

func (r *Registry) AddMember(idx int, m domain.Member) error {
	rm, err := r.room(idx)
	if err != nil {
		return err
	}
	if err := rm.add(m); err != nil {
		return err
	}
	log.Info().Str("module", "core.registry").Str("room", rm.name).Str("user", m.Name).Stringer("reply", m.Reply).Int("members", len(rm.members)).Msg("member added")
	return nil
}

// RemoveMember removes the member called name from the room.
func (r *Registry) RemoveMember(idx int, name string) (domain.Member, error) {
	rm, err := r.room(idx)
	if err != nil {
		return domain.Member{}, err
	}
	i := rm.indexOf(name)
	if i < 0 {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	m := rm.removeAt(i)
	log.Info().Str("module", "core.registry").Str("room", rm.name).Str("user", name).Int("members", len(rm.members)).Msg("member removed")
	return m, nil
}

// Evict removes m only if the room still holds that exact (name, reply) pair.
func (r *Registry) Evict(idx int, m domain.Member) bool {
	rm, err := r.room(idx)
	if err != nil {
		return false
	}
	i := rm.indexOf(m.Name)
	if i < 0 || !rm.members[i].Same(m) {
		return false
	}
	rm.removeAt(i)
	log.Warn().Str("module", "core.registry").Str("room", rm.name).Str("user", m.Name).Stringer("reply", m.Reply).Msg("member evicted")
	return true
}

// Members returns a copy of the room's member list.
func (r *Registry) Members(idx int) []domain.Member {
	rm, err := r.room(idx)
	if err != nil {
		return nil
	}
	out := make([]domain.Member, len(rm.members))
	copy(out, rm.members)
	return out
}

func (r *Registry) RoomName(idx int) string {
	rm, err := r.room(idx)
	if err != nil {
		return ""
	}
	return rm.name
}

// Snapshot lists every room in creation order.
func (r *Registry) Snapshot() []domain.RoomInfo {
	out := make([]domain.RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.info())
	}
	return out
}

// Broadcast calls deliver for every member of the room except the one that
// exactly matches from. A failed delivery never stops the fan-out.
func (r *Registry) Broadcast(idx int, from domain.Member, deliver Deliver) PublishResult {
	res := PublishResult{}
	rm, err := r.room(idx)
	if err != nil {
		return res
	}
	for _, m := range rm.members {
		if m.Same(from) {
			continue
		}
		if err := deliver(m); err != nil {
			res.Dropped = append(res.Dropped, Dropped{Member: m, Err: err})
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.registry").Str("room", rm.name).Str("from", from.Name).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Registry) room(idx int) (*room, error) {
	if idx < 0 || idx >= len(r.rooms) {
		return nil, fmt.Errorf("%w: index %d", domain.ErrRoomNotFound, idx)
	}
	return r.rooms[idx], nil
}
