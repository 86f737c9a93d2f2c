package core

import "github.com/dkeye/Relay/internal/domain"

// room is a bounded membership list. Order is not part of its contract:
// removal swaps the last member into the freed slot.
type room struct {
	name    string
	members []domain.Member
	limit   int
}

func newRoom(name string, limit int) *room {
	return &room{name: name, members: make([]domain.Member, 0, min(limit, 8)), limit: limit}
}

func (r *room) indexOf(name string) int {
	for i, m := range r.members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

func (r *room) add(m domain.Member) error {
	if r.indexOf(m.Name) >= 0 {
		return domain.ErrDuplicateMember
	}
	if len(r.members) >= r.limit {
		return domain.ErrRoomFull
	}
	r.members = append(r.members, m)
	return nil
}

func (r *room) removeAt(i int) domain.Member {
	m := r.members[i]
	last := len(r.members) - 1
	r.members[i] = r.members[last]
	r.members[last] = domain.Member{}
	r.members = r.members[:last]
	return m
}

func (r *room) info() domain.RoomInfo {
	names := make([]string, len(r.members))
	for i, m := range r.members {
		names[i] = m.Name
	}
	return domain.RoomInfo{Name: r.name, MemberCount: len(r.members), Members: names}
}
