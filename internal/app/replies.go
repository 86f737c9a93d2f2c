package app

import (
	"errors"
	"fmt"

	"github.com/dkeye/Relay/internal/domain"
)

// Texts carried by RESPONSE frames.
const (
	JoinedPrefix     = "Te has unido a la sala: "
	JoinFailedPrefix = "ERROR: No se pudo agregar a la sala"
	LeftText         = "Te has desconectado de la sala."
)

func joinedText(room string) string { return JoinedPrefix + room }

func joinFailedText(err error) string {
	var reason string
	switch {
	case errors.Is(err, domain.ErrDuplicateMember):
		reason = "ya existe un usuario con ese nombre"
	case errors.Is(err, domain.ErrRoomFull):
		reason = "la sala está llena"
	case errors.Is(err, domain.ErrRegistryFull):
		reason = "no se pueden crear más salas"
	default:
		return JoinFailedPrefix + "."
	}
	return fmt.Sprintf("%s (%s).", JoinFailedPrefix, reason)
}
