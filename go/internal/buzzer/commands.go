package buzzer

import "encoding/json"

// CommandType identifies an inbound command from a connection.
type CommandType string

const (
	CmdCreateRoom     CommandType = "create-room"
	CmdJoinRoom       CommandType = "join-room"
	CmdRejoinRoom     CommandType = "rejoin-room"
	CmdStartCountdown CommandType = "start-countdown"
	CmdBuzz           CommandType = "buzz"
	CmdEndRound       CommandType = "end-round"
	CmdResetBuzzer    CommandType = "reset-buzzer"
)

// Command is the envelope for every inbound message; Data holds the
// type-specific payload.
type Command struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CreateRoomPayload optionally overrides the process-wide identity policy
// for the new room.
type CreateRoomPayload struct {
	IdentityPolicy string `json:"identityPolicy,omitempty"`
}

// JoinRoomPayload requests admission to a room. PlayerNum is ignored by
// rooms running the sequential policy.
type JoinRoomPayload struct {
	RoomID    string `json:"roomId"`
	PlayerNum int    `json:"playerNum"`
}

// RejoinRoomPayload reclaims a parked identity on a fresh connection.
type RejoinRoomPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

// StartCountdownPayload is the host command opening a round.
type StartCountdownPayload struct {
	RoomID           string `json:"roomId"`
	CountdownSeconds int    `json:"countdownSeconds"`
}

// BuzzCommandPayload is a participant's press. ClientTimestamp is carried
// for diagnostics only and never affects ordering.
type BuzzCommandPayload struct {
	RoomID          string `json:"roomId"`
	ClientTimestamp int64  `json:"clientTimestamp"`
}

// RoomRef targets host commands that need nothing but the room.
type RoomRef struct {
	RoomID string `json:"roomId"`
}
