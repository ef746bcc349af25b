package buzzer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Broadcaster is the transport-side fanout contract. The transport groups
// connections into rooms; the coordinator only names targets. Broadcasts
// are fire-and-forget with no acknowledgement.
type Broadcaster interface {
	// JoinRoom binds a connection to a room's broadcast group.
	JoinRoom(connectionID, roomID string)

	// CloseRoom drops a room's broadcast group. Connections stay open.
	CloseRoom(roomID string)

	// BroadcastToRoom delivers an event to every connection in the room.
	BroadcastToRoom(roomID string, event *Event)

	// SendToConnection delivers an event to a single connection.
	SendToConnection(connectionID string, event *Event)
}

// Config tunes the coordinator's round and reconnection behavior.
type Config struct {
	// GracePeriod is how long a disconnected participant's identity and
	// score survive while awaiting a rejoin.
	GracePeriod time.Duration

	// AutoReset chains the standby reset into end-round. When false the
	// host must send reset-buzzer explicitly.
	AutoReset bool

	// IdentityPolicy is the default admission policy for new rooms.
	IdentityPolicy string
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod:    60 * time.Second,
		AutoReset:      true,
		IdentityPolicy: PolicyExplicit,
	}
}

// SessionCoordinator applies the session protocol: it resolves inbound
// commands to room mutations and emits outbound events through the
// Broadcaster.
//
// Every command and every timer callback is one atomic step behind mu, so
// two mutations on the same room never interleave.
type SessionCoordinator struct {
	mu       sync.Mutex
	registry *RoomRegistry
	tracker  *ReconnectionTracker
	bcast    Broadcaster
	clock    clockwork.Clock
	cfg      Config
}

// NewSessionCoordinator wires a coordinator to its transport fanout.
func NewSessionCoordinator(bcast Broadcaster, clock clockwork.Clock, cfg Config) *SessionCoordinator {
	return &SessionCoordinator{
		registry: NewRoomRegistry(),
		tracker:  NewReconnectionTracker(clock, cfg.GracePeriod),
		bcast:    bcast,
		clock:    clock,
		cfg:      cfg,
	}
}

// event stamps outbound envelopes from the coordinator's clock so
// timestamps stay deterministic under a fake clock.
func (s *SessionCoordinator) event(t EventType, roomID string, payload any) *Event {
	return NewEventAt(t, roomID, s.clock.Now(), payload)
}

// CreateRoom opens a room hosted by the given connection and tells it the
// new room id. policy may be empty to use the configured default.
func (s *SessionCoordinator) CreateRoom(connectionID, policy string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if policy == "" {
		policy = s.cfg.IdentityPolicy
	}
	room := s.registry.Create(connectionID, NewIdentityPolicy(policy))

	s.bcast.JoinRoom(connectionID, room.ID)
	s.bcast.SendToConnection(connectionID, s.event(EventRoomCreated, room.ID, RoomCreatedPayload{RoomID: room.ID}))
	return room.ID
}

// JoinRoom admits a connection into a room under the room's identity
// policy. Failures are reported only to the joiner.
func (s *SessionCoordinator) JoinRoom(connectionID, roomID string, playerNum int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.registry.Get(roomID)
	if !ok {
		s.bcast.SendToConnection(connectionID, s.event(EventJoinError, roomID, ErrorPayload{Message: ErrRoomNotFound.Error()}))
		return
	}

	name, number, err := room.Identity.Assign(playerNum)
	if err != nil {
		s.bcast.SendToConnection(connectionID, s.event(EventJoinError, roomID, ErrorPayload{Message: err.Error()}))
		return
	}

	p := &Participant{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Name:         name,
		Number:       number,
	}
	room.Participants[p.ID] = p
	s.bcast.JoinRoom(connectionID, roomID)

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", p.ID).
		Str("name", name).
		Msg("participant joined")

	s.bcast.SendToConnection(room.HostConnectionID, s.event(EventParticipantJoined, roomID, ParticipantRef{ID: p.ID, Name: name}))
	s.bcast.SendToConnection(connectionID, s.event(EventJoinedRoom, roomID, RoomSnapshot{
		RoomID:       roomID,
		IsHost:       false,
		Participants: room.ParticipantsSnapshot(),
		BuzzerState:  room.State,
		Rounds:       room.Rounds,
		CurrentRound: room.CurrentRound,
		PlayerNum:    number,
	}))
}

// RejoinRoom reclaims a parked identity on a fresh connection, cancelling
// its pending removal and resynchronizing the client with a full snapshot.
func (s *SessionCoordinator) RejoinRoom(connectionID, roomID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.registry.Get(roomID)
	if !ok {
		s.bcast.SendToConnection(connectionID, s.event(EventError, roomID, ErrorPayload{Message: ErrRoomNotFound.Error()}))
		return
	}

	if _, ok := s.tracker.Cancel(roomID, participantID); !ok {
		s.bcast.SendToConnection(connectionID, s.event(EventError, roomID, ErrorPayload{Message: ErrSessionExpired.Error()}))
		return
	}

	p, ok := room.Participants[participantID]
	if !ok {
		s.bcast.SendToConnection(connectionID, s.event(EventError, roomID, ErrorPayload{Message: ErrSessionExpired.Error()}))
		return
	}

	p.ConnectionID = connectionID
	s.bcast.JoinRoom(connectionID, roomID)

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Str("name", p.Name).
		Msg("participant rejoined")

	s.bcast.SendToConnection(connectionID, s.event(EventRejoinedRoom, roomID, RoomSnapshot{
		RoomID:        roomID,
		IsHost:        false,
		Participants:  room.ParticipantsSnapshot(),
		BuzzerState:   room.State,
		Rounds:        room.Rounds,
		CurrentRound:  room.CurrentRound,
		PlayerNum:     p.Number,
		ParticipantID: participantID,
	}))
	s.bcast.SendToConnection(room.HostConnectionID, s.event(EventParticipantRejoined, roomID, ParticipantRef{ID: participantID, Name: p.Name}))
}

// StartCountdown arms a countdown and schedules the countdown-to-active
// transition. Non-host callers and missing rooms are silent no-ops.
func (s *SessionCoordinator) StartCountdown(connectionID, roomID string, countdownSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.registry.Get(roomID)
	if !ok || room.HostConnectionID != connectionID {
		return
	}

	duration := time.Duration(countdownSeconds) * time.Second
	endTime := s.clock.Now().Add(duration)
	gen := room.BeginCountdown(endTime)

	log.Info().
		Str("room_id", roomID).
		Int("countdown_seconds", countdownSeconds).
		Int("round", room.CurrentRound).
		Msg("countdown started")

	s.bcast.BroadcastToRoom(roomID, s.event(EventCountdownStarted, roomID, CountdownStartedPayload{
		BuzzerState:      StateCountdown,
		CountdownSeconds: countdownSeconds,
		EndTime:          endTime.UnixMilli(),
		CurrentRound:     room.CurrentRound,
	}))

	s.clock.AfterFunc(duration, func() {
		s.activateBuzzer(roomID, gen)
	})
}

// activateBuzzer is the countdown timer callback. It is a no-op if the room
// is gone or a newer countdown superseded the timer's generation.
func (s *SessionCoordinator) activateBuzzer(roomID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.registry.Get(roomID)
	if !ok || !room.ActivateIfCurrent(gen) {
		return
	}

	log.Info().Str("room_id", roomID).Msg("buzzer active")
	s.bcast.BroadcastToRoom(roomID, s.event(EventBuzzerActive, roomID, BuzzerActivePayload{BuzzerState: StateActive}))
}

// Buzz records a press. Presses are accepted only while the buzzer is
// active and at most once per participant per round. Ordering is decided by
// server receipt time alone.
func (s *SessionCoordinator) Buzz(connectionID, roomID string, clientTimestamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.registry.Get(roomID)
	if !ok || room.State != StateActive {
		return
	}

	p := room.ParticipantByConnection(connectionID)
	if p == nil {
		s.bcast.SendToConnection(connectionID, s.event(EventError, roomID, ErrorPayload{Message: ErrMissingParticipant.Error()}))
		return
	}
	if p.HasPressed {
		return
	}

	press := room.RecordPress(p, s.clock.Now(), clientTimestamp)

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", p.ID).
		Int64("reaction_time_ms", press.ReactionTime).
		Msg("buzz recorded")

	s.bcast.BroadcastToRoom(roomID, s.event(EventBuzz, roomID, BuzzPayload{
		ID:            p.ID,
		Name:          p.Name,
		BuzzerPresses: room.Presses,
	}))
	s.bcast.SendToConnection(connectionID, s.event(EventBuzzRecorded, roomID, BuzzRecordedPayload{ReactionTime: press.ReactionTime}))
}

// EndRound concludes the round, awarding the fastest presser, and when
// AutoReset is on immediately returns the room to standby for the next
// round. Non-host callers are silent no-ops.
func (s *SessionCoordinator) EndRound(connectionID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.registry.Get(roomID)
	if !ok || room.HostConnectionID != connectionID {
		return
	}

	result := room.ConcludeRound(s.clock.Now())
	scores := room.Scores()

	log.Info().
		Str("room_id", roomID).
		Int("round", result.RoundNumber).
		Bool("has_winner", result.Winner != nil).
		Msg("round ended")

	s.bcast.BroadcastToRoom(roomID, s.event(EventRoundEnded, roomID, RoundEndedPayload{
		BuzzerState:   StateFinished,
		BuzzerPresses: result.BuzzerPresses,
		Rounds:        room.Rounds,
		Scores:        scores,
	}))

	if s.cfg.AutoReset {
		s.resetRoom(room, scores)
	}
}

// ResetBuzzer is the explicit host reset used when AutoReset is off. It
// only applies to a finished round.
func (s *SessionCoordinator) ResetBuzzer(connectionID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.registry.Get(roomID)
	if !ok || room.HostConnectionID != connectionID || room.State != StateFinished {
		return
	}
	s.resetRoom(room, room.Scores())
}

func (s *SessionCoordinator) resetRoom(room *Room, scores map[string]ScoreEntry) {
	room.ResetForNextRound()

	log.Info().Str("room_id", room.ID).Int("round", room.CurrentRound).Msg("buzzer reset")

	s.bcast.BroadcastToRoom(room.ID, s.event(EventBuzzerReset, room.ID, BuzzerResetPayload{
		BuzzerState:   StateStandby,
		BuzzerPresses: []BuzzerPress{},
		CurrentRound:  room.CurrentRound,
		Rounds:        room.Rounds,
		Scores:        scores,
	}))
}

// Disconnect handles a transport-level connection drop. A host dropping
// tears the room down synchronously; a participant dropping is parked for
// the grace period instead of being removed.
func (s *SessionCoordinator) Disconnect(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room := s.registry.FindByHostConnection(connectionID); room != nil {
		s.closeRoom(room)
		return
	}

	room, p := s.registry.FindByParticipantConnection(connectionID)
	if room == nil || s.tracker.Pending(room.ID, p.ID) {
		return
	}

	roomID, participantID := room.ID, p.ID
	s.tracker.Track(roomID, participantID, p.Number, func() {
		s.expireParticipant(roomID, participantID)
	})
	s.bcast.SendToConnection(room.HostConnectionID, s.event(EventParticipantDisconnected, roomID, ParticipantRef{ID: p.ID, Name: p.Name}))
}

// closeRoom destroys the room and every pending removal under it and tells
// all participants.
func (s *SessionCoordinator) closeRoom(room *Room) {
	log.Info().Str("room_id", room.ID).Msg("room closed by host disconnect")

	s.bcast.BroadcastToRoom(room.ID, s.event(EventRoomClosed, room.ID, RoomClosedPayload{Message: "Host has left the room"}))
	s.tracker.DropRoom(room.ID)
	s.registry.Delete(room.ID)
	s.bcast.CloseRoom(room.ID)
}

// expireParticipant is the grace-period timer callback: the participant is
// permanently removed and their number returns to the identity pool.
func (s *SessionCoordinator) expireParticipant(roomID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tracker.Claim(roomID, participantID)
	if !ok {
		// Rejoined or the room was torn down while this callback waited.
		return
	}
	room, ok := s.registry.Get(roomID)
	if !ok {
		return
	}
	p, ok := room.Participants[participantID]
	if !ok {
		return
	}

	room.Identity.Release(entry.ReservedNumber)
	delete(room.Participants, participantID)

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Str("name", p.Name).
		Msg("participant removed after grace period")

	s.bcast.SendToConnection(room.HostConnectionID, s.event(EventParticipantLeft, roomID, ParticipantRef{ID: p.ID, Name: p.Name}))
}
