package buzzer

import "errors"

// Validation failures are reported only to the originating connection as
// message-carrying error events; none of these ever escalate past the room.
var (
	ErrRoomNotFound        = errors.New("room does not exist")
	ErrInvalidPlayerNumber = errors.New("player number must be between 1 and 50")
	ErrNumberTaken         = errors.New("player number is already taken")
	ErrSessionExpired      = errors.New("session expired or not found")
	ErrMissingParticipant  = errors.New("you are not a participant in this room")
)
