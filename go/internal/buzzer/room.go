package buzzer

import (
	"sort"
	"time"
)

// State is the buzzer state of a room. The machine cycles
// standby -> countdown -> active -> finished -> standby and only exits when
// the room itself is destroyed.
type State string

const (
	StateStandby   State = "standby"
	StateCountdown State = "countdown"
	StateActive    State = "active"
	StateFinished  State = "finished"
)

// Participant is one player in a room. ID is stable across reconnects;
// ConnectionID is the current transport binding and is replaced on rejoin.
type Participant struct {
	ID           string `json:"id"`
	ConnectionID string `json:"-"`
	Name         string `json:"name"`
	Number       int    `json:"-"`
	HasPressed   bool   `json:"hasPressed"`
	Score        int    `json:"score"`
}

// BuzzerPress records one accepted press. ReactionTime is server receipt
// time minus the countdown end, in milliseconds; it may be negative when a
// press lands before the active broadcast is believed delivered and is
// deliberately not clamped.
type BuzzerPress struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ServerTimestamp int64  `json:"serverTimestamp"`
	ClientTimestamp int64  `json:"clientTimestamp"`
	ReactionTime    int64  `json:"reactionTime"`
}

// RoundWinner identifies the fastest presser of a concluded round.
type RoundWinner struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ReactionTime int64  `json:"reactionTime"`
}

// RoundResult is the immutable record of one concluded round.
type RoundResult struct {
	RoundNumber   int           `json:"roundNumber"`
	BuzzerPresses []BuzzerPress `json:"buzzerPresses"`
	Winner        *RoundWinner  `json:"winner"`
	Timestamp     int64         `json:"timestamp"`
}

// Room owns all state for one buzzer session. It is not safe for concurrent
// use; the coordinator serializes every mutation.
type Room struct {
	ID               string
	HostConnectionID string
	Participants     map[string]*Participant
	State            State
	Presses          []BuzzerPress
	CountdownEndTime time.Time
	Rounds           []RoundResult
	CurrentRound     int
	Identity         IdentityPolicy

	// countdownGen invalidates countdown timers superseded by a newer
	// countdown before they fire.
	countdownGen uint64
}

// NewRoom returns a room in standby at round 1 with no participants.
func NewRoom(id, hostConnectionID string, identity IdentityPolicy) *Room {
	return &Room{
		ID:               id,
		HostConnectionID: hostConnectionID,
		Participants:     make(map[string]*Participant),
		State:            StateStandby,
		Presses:          []BuzzerPress{},
		Rounds:           []RoundResult{},
		CurrentRound:     1,
		Identity:         identity,
	}
}

// BeginCountdown clears the previous round's presses and flags, arms the
// countdown and returns the timer generation the caller must present when
// the countdown elapses.
func (r *Room) BeginCountdown(endTime time.Time) uint64 {
	r.State = StateCountdown
	r.Presses = []BuzzerPress{}
	r.CountdownEndTime = endTime
	for _, p := range r.Participants {
		p.HasPressed = false
	}
	r.countdownGen++
	return r.countdownGen
}

// ActivateIfCurrent transitions countdown -> active, but only for the timer
// generation that armed the current countdown. Stale timers are no-ops.
func (r *Room) ActivateIfCurrent(gen uint64) bool {
	if r.State != StateCountdown || r.countdownGen != gen {
		return false
	}
	r.State = StateActive
	return true
}

// RecordPress appends a press for the participant and keeps the press list
// sorted ascending by reaction time, ties kept in arrival order.
func (r *Room) RecordPress(p *Participant, serverTime time.Time, clientTimestamp int64) BuzzerPress {
	p.HasPressed = true
	press := BuzzerPress{
		ID:              p.ID,
		Name:            p.Name,
		ServerTimestamp: serverTime.UnixMilli(),
		ClientTimestamp: clientTimestamp,
		ReactionTime:    serverTime.Sub(r.CountdownEndTime).Milliseconds(),
	}
	r.Presses = append(r.Presses, press)
	sort.SliceStable(r.Presses, func(i, j int) bool {
		return r.Presses[i].ReactionTime < r.Presses[j].ReactionTime
	})
	return press
}

// ConcludeRound moves the room to finished, awards the round winner a point
// and appends the round record. Winner is nil when nobody pressed.
func (r *Room) ConcludeRound(now time.Time) RoundResult {
	r.State = StateFinished

	result := RoundResult{
		RoundNumber:   r.CurrentRound,
		BuzzerPresses: append([]BuzzerPress{}, r.Presses...),
		Timestamp:     now.UnixMilli(),
	}
	if len(r.Presses) > 0 {
		first := r.Presses[0]
		result.Winner = &RoundWinner{ID: first.ID, Name: first.Name, ReactionTime: first.ReactionTime}
		if winner, ok := r.Participants[first.ID]; ok {
			winner.Score++
		}
	}
	r.Rounds = append(r.Rounds, result)
	return result
}

// ResetForNextRound returns the room to standby and advances the round
// counter.
func (r *Room) ResetForNextRound() {
	r.State = StateStandby
	r.Presses = []BuzzerPress{}
	r.CountdownEndTime = time.Time{}
	r.CurrentRound++
	for _, p := range r.Participants {
		p.HasPressed = false
	}
}

// ParticipantByConnection resolves the participant currently bound to the
// given transport connection.
func (r *Room) ParticipantByConnection(connectionID string) *Participant {
	for _, p := range r.Participants {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	return nil
}

// Scores returns every participant's running score keyed by participant id.
func (r *Room) Scores() map[string]ScoreEntry {
	scores := make(map[string]ScoreEntry, len(r.Participants))
	for id, p := range r.Participants {
		scores[id] = ScoreEntry{Name: p.Name, Score: p.Score}
	}
	return scores
}

// ParticipantsSnapshot returns value copies of all participants for join
// and rejoin snapshots.
func (r *Room) ParticipantsSnapshot() []Participant {
	out := make([]Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, *p)
	}
	return out
}
