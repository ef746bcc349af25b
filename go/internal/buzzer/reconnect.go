package buzzer

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PendingRemoval parks a disconnected participant while their grace-period
// timer runs. ReservedNumber is released back to the room's identity pool
// only if the timer fires.
type PendingRemoval struct {
	ParticipantID  string
	DisconnectedAt time.Time
	ReservedNumber int
	timer          clockwork.Timer
}

// ReconnectionTracker keeps per-room tables of participants pending
// permanent removal. It is not safe for concurrent use; the coordinator
// serializes every call, including expiry callbacks.
type ReconnectionTracker struct {
	clock   clockwork.Clock
	grace   time.Duration
	pending map[string]map[string]*PendingRemoval
}

// NewReconnectionTracker returns a tracker whose timers fire after the
// given grace period.
func NewReconnectionTracker(clock clockwork.Clock, grace time.Duration) *ReconnectionTracker {
	return &ReconnectionTracker{
		clock:   clock,
		grace:   grace,
		pending: make(map[string]map[string]*PendingRemoval),
	}
}

// Track parks a participant and arms its expiry timer. The expire callback
// runs once when the grace period elapses without a rejoin.
func (t *ReconnectionTracker) Track(roomID, participantID string, reservedNumber int, expire func()) {
	if t.pending[roomID] == nil {
		t.pending[roomID] = make(map[string]*PendingRemoval)
	}
	t.pending[roomID][participantID] = &PendingRemoval{
		ParticipantID:  participantID,
		DisconnectedAt: t.clock.Now(),
		ReservedNumber: reservedNumber,
		timer:          t.clock.AfterFunc(t.grace, expire),
	}
	log.Info().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Dur("grace_period", t.grace).
		Msg("participant parked for reconnection")
}

// Cancel stops the expiry timer and discards the entry. It returns the
// entry and whether one existed.
func (t *ReconnectionTracker) Cancel(roomID, participantID string) (*PendingRemoval, bool) {
	entry, ok := t.remove(roomID, participantID)
	if ok {
		entry.timer.Stop()
	}
	return entry, ok
}

// Claim discards the entry without touching its timer. Expiry callbacks use
// it to detect that they lost the race against a rejoin or room teardown.
func (t *ReconnectionTracker) Claim(roomID, participantID string) (*PendingRemoval, bool) {
	return t.remove(roomID, participantID)
}

// Pending reports whether the participant is parked awaiting a rejoin.
func (t *ReconnectionTracker) Pending(roomID, participantID string) bool {
	_, ok := t.pending[roomID][participantID]
	return ok
}

// DropRoom cancels every pending removal under the room.
func (t *ReconnectionTracker) DropRoom(roomID string) {
	for _, entry := range t.pending[roomID] {
		entry.timer.Stop()
	}
	delete(t.pending, roomID)
}

func (t *ReconnectionTracker) remove(roomID, participantID string) (*PendingRemoval, bool) {
	entries, ok := t.pending[roomID]
	if !ok {
		return nil, false
	}
	entry, ok := entries[participantID]
	if !ok {
		return nil, false
	}
	delete(entries, participantID)
	if len(entries) == 0 {
		delete(t.pending, roomID)
	}
	return entry, true
}
