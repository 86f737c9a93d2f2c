package domain

import "errors"

var (
	ErrRegistryFull = errors.New("no room slots left")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

// RoomInfo is a read-only view of a room.
type RoomInfo struct {
	Name        string   `json:"name"`
	MemberCount int      `json:"member_count"`
	Members     []string `json:"members"`
}
