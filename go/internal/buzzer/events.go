package buzzer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType identifies an outbound room event.
type EventType string

const (
	EventRoomCreated             EventType = "room-created"
	EventJoinedRoom              EventType = "joined-room"
	EventRejoinedRoom            EventType = "rejoined-room"
	EventJoinError               EventType = "join-error"
	EventError                   EventType = "error"
	EventParticipantJoined       EventType = "participant-joined"
	EventParticipantRejoined     EventType = "participant-rejoined"
	EventParticipantDisconnected EventType = "participant-disconnected"
	EventParticipantLeft         EventType = "participant-left"
	EventCountdownStarted        EventType = "countdown-started"
	EventBuzzerActive            EventType = "buzzer-active"
	EventBuzz                    EventType = "buzz-event"
	EventBuzzRecorded            EventType = "your-buzz-recorded"
	EventRoundEnded              EventType = "round-ended"
	EventBuzzerReset             EventType = "buzzer-reset"
	EventRoomClosed              EventType = "room-closed"
)

// Event is the envelope for every outbound message. Data holds the
// type-specific payload already marshaled, so fanout layers can forward it
// without knowing the shape.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent builds an event envelope around the given payload, stamped
// with the wall clock.
func NewEvent(t EventType, roomID string, payload any) *Event {
	return NewEventAt(t, roomID, time.Now(), payload)
}

// NewEventAt is NewEvent with an explicit timestamp, for callers that
// inject their clock.
func NewEventAt(t EventType, roomID string, ts time.Time, payload any) *Event {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event payload")
	}
	return &Event{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      t,
		Timestamp: ts,
		Data:      data,
	}
}

// RoomCreatedPayload is sent to the host once its room exists.
type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

// RoomSnapshot is the full room state sent to a joining or rejoining
// connection so it can render without waiting for further events.
type RoomSnapshot struct {
	RoomID       string        `json:"roomId"`
	IsHost       bool          `json:"isHost"`
	Participants []Participant `json:"participants"`
	BuzzerState  State         `json:"buzzerState"`
	Rounds       []RoundResult `json:"rounds"`
	CurrentRound int           `json:"currentRound"`
	PlayerNum    int           `json:"playerNum,omitempty"`

	// Set only on rejoin so the client can keep using its stable id.
	ParticipantID string `json:"participantId,omitempty"`
}

// ErrorPayload carries a human-readable validation failure back to the
// originating connection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ParticipantRef names a participant in host notifications.
type ParticipantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CountdownStartedPayload announces a new countdown to the room.
type CountdownStartedPayload struct {
	BuzzerState      State `json:"buzzerState"`
	CountdownSeconds int   `json:"countdownSeconds"`
	EndTime          int64 `json:"endTime"`
	CurrentRound     int   `json:"currentRound"`
}

// BuzzerActivePayload announces the countdown-to-active transition.
type BuzzerActivePayload struct {
	BuzzerState State `json:"buzzerState"`
}

// BuzzPayload broadcasts an accepted press together with the full ordered
// press list.
type BuzzPayload struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	BuzzerPresses []BuzzerPress `json:"buzzerPresses"`
}

// BuzzRecordedPayload is unicast to the presser with their own measured
// reaction time.
type BuzzRecordedPayload struct {
	ReactionTime int64 `json:"reactionTime"`
}

// ScoreEntry is one participant's running score, keyed by participant id in
// round summaries.
type ScoreEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// RoundEndedPayload closes out a round with the final press ordering, the
// round history and the updated scores.
type RoundEndedPayload struct {
	BuzzerState   State                 `json:"buzzerState"`
	BuzzerPresses []BuzzerPress         `json:"buzzerPresses"`
	Rounds        []RoundResult         `json:"rounds"`
	Scores        map[string]ScoreEntry `json:"scores"`
}

// BuzzerResetPayload announces the room returning to standby for the next
// round.
type BuzzerResetPayload struct {
	BuzzerState   State                 `json:"buzzerState"`
	BuzzerPresses []BuzzerPress         `json:"buzzerPresses"`
	CurrentRound  int                   `json:"currentRound"`
	Rounds        []RoundResult         `json:"rounds"`
	Scores        map[string]ScoreEntry `json:"scores"`
}

// RoomClosedPayload tells participants the room is gone.
type RoomClosedPayload struct {
	Message string `json:"message"`
}
