// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/dkeye/Relay/internal/protocol"
)

const (
	MaxUsernameLen = protocol.MaxNameLen
	MaxRoomNameLen = protocol.MaxNameLen
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrRoomNameEmpty   = errors.New("room name empty")
)

// ValidateUsername is a tiny helper shared by the client and the registry.
func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

func ValidateRoomName(name string) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}
