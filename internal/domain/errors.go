package domain

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrInvalidRoom     = errors.New("invalid room")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomClosed      = errors.New("room is closed")
	ErrNotInRoom       = errors.New("user not in the room")

	// ErrTransient помечает временные ошибки хранилища; операцию можно повторить.
	ErrTransient = errors.New("transient storage error")
)
