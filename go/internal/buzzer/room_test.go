package buzzer

import (
	"testing"
	"time"
)

func testRoom(t *testing.T) *Room {
	t.Helper()
	return NewRoom("4217", "host-conn", NewIdentityPolicy(PolicyExplicit))
}

func addParticipant(t *testing.T, room *Room, num int, connID string) *Participant {
	t.Helper()
	name, number, err := room.Identity.Assign(num)
	if err != nil {
		t.Fatalf("Assign(%d) returned error: %v", num, err)
	}
	p := &Participant{ID: "pid-" + name, ConnectionID: connID, Name: name, Number: number}
	room.Participants[p.ID] = p
	return p
}

func TestRecordPressKeepsOrderingByReactionTime(t *testing.T) {
	room := testRoom(t)
	slow := addParticipant(t, room, 1, "c1")
	fast := addParticipant(t, room, 2, "c2")

	end := time.Now()
	room.BeginCountdown(end)
	room.State = StateActive

	// Arrival order is slow (50ms) then fast (30ms); the sorted list must
	// put the 30ms press first.
	room.RecordPress(slow, end.Add(50*time.Millisecond), 0)
	room.RecordPress(fast, end.Add(30*time.Millisecond), 0)

	if len(room.Presses) != 2 {
		t.Fatalf("got %d presses, want 2", len(room.Presses))
	}
	if room.Presses[0].ReactionTime != 30 || room.Presses[1].ReactionTime != 50 {
		t.Fatalf("press order = [%d, %d], want [30, 50]",
			room.Presses[0].ReactionTime, room.Presses[1].ReactionTime)
	}
	if room.Presses[0].ID != fast.ID {
		t.Fatalf("first press belongs to %s, want %s", room.Presses[0].ID, fast.ID)
	}
}

func TestRecordPressTieKeepsArrivalOrder(t *testing.T) {
	room := testRoom(t)
	first := addParticipant(t, room, 1, "c1")
	second := addParticipant(t, room, 2, "c2")

	end := time.Now()
	room.BeginCountdown(end)
	room.State = StateActive

	at := end.Add(40 * time.Millisecond)
	room.RecordPress(first, at, 0)
	room.RecordPress(second, at, 0)

	if room.Presses[0].ID != first.ID || room.Presses[1].ID != second.ID {
		t.Fatalf("tie order = [%s, %s], want arrival order [%s, %s]",
			room.Presses[0].ID, room.Presses[1].ID, first.ID, second.ID)
	}
}

func TestRecordPressNegativeReactionNotClamped(t *testing.T) {
	room := testRoom(t)
	p := addParticipant(t, room, 1, "c1")

	end := time.Now()
	room.BeginCountdown(end)
	room.State = StateActive

	press := room.RecordPress(p, end.Add(-20*time.Millisecond), 0)
	if press.ReactionTime != -20 {
		t.Fatalf("reaction time = %d, want -20", press.ReactionTime)
	}
}

func TestConcludeRoundAwardsOnlyTheWinner(t *testing.T) {
	room := testRoom(t)
	winner := addParticipant(t, room, 1, "c1")
	loser := addParticipant(t, room, 2, "c2")

	end := time.Now()
	room.BeginCountdown(end)
	room.State = StateActive
	room.RecordPress(loser, end.Add(90*time.Millisecond), 0)
	room.RecordPress(winner, end.Add(45*time.Millisecond), 0)

	result := room.ConcludeRound(time.Now())

	if room.State != StateFinished {
		t.Fatalf("state = %s, want finished", room.State)
	}
	if result.Winner == nil || result.Winner.ID != winner.ID {
		t.Fatalf("winner = %+v, want %s", result.Winner, winner.ID)
	}
	if winner.Score != 1 {
		t.Fatalf("winner score = %d, want 1", winner.Score)
	}
	if loser.Score != 0 {
		t.Fatalf("loser score = %d, want 0", loser.Score)
	}
	if len(room.Rounds) != 1 || room.Rounds[0].RoundNumber != 1 {
		t.Fatalf("rounds = %+v, want one round numbered 1", room.Rounds)
	}
}

func TestConcludeRoundWithoutPresses(t *testing.T) {
	room := testRoom(t)
	addParticipant(t, room, 1, "c1")

	result := room.ConcludeRound(time.Now())

	if result.Winner != nil {
		t.Fatalf("winner = %+v, want nil", result.Winner)
	}
	if len(room.Rounds) != 1 {
		t.Fatalf("got %d rounds, want 1", len(room.Rounds))
	}
}

func TestRoundSnapshotIsImmutable(t *testing.T) {
	room := testRoom(t)
	p := addParticipant(t, room, 1, "c1")

	end := time.Now()
	room.BeginCountdown(end)
	room.State = StateActive
	room.RecordPress(p, end.Add(10*time.Millisecond), 0)
	room.ConcludeRound(time.Now())

	room.ResetForNextRound()

	if len(room.Rounds[0].BuzzerPresses) != 1 {
		t.Fatalf("round snapshot lost its presses after reset")
	}
}

func TestResetForNextRound(t *testing.T) {
	room := testRoom(t)
	p := addParticipant(t, room, 1, "c1")

	end := time.Now()
	room.BeginCountdown(end)
	room.State = StateActive
	room.RecordPress(p, end.Add(10*time.Millisecond), 0)
	room.ConcludeRound(time.Now())

	room.ResetForNextRound()

	if room.State != StateStandby {
		t.Fatalf("state = %s, want standby", room.State)
	}
	if room.CurrentRound != 2 {
		t.Fatalf("current round = %d, want 2", room.CurrentRound)
	}
	if len(room.Presses) != 0 {
		t.Fatalf("presses not cleared: %+v", room.Presses)
	}
	if !room.CountdownEndTime.IsZero() {
		t.Fatalf("countdown end time not cleared")
	}
	if p.HasPressed {
		t.Fatalf("hasPressed not cleared")
	}
}

func TestActivateIfCurrentRejectsStaleGeneration(t *testing.T) {
	room := testRoom(t)

	stale := room.BeginCountdown(time.Now().Add(5 * time.Second))
	current := room.BeginCountdown(time.Now().Add(3 * time.Second))

	if room.ActivateIfCurrent(stale) {
		t.Fatalf("stale generation activated the buzzer")
	}
	if room.State != StateCountdown {
		t.Fatalf("state = %s after stale fire, want countdown", room.State)
	}
	if !room.ActivateIfCurrent(current) {
		t.Fatalf("current generation failed to activate")
	}
	if room.State != StateActive {
		t.Fatalf("state = %s, want active", room.State)
	}
	// Once active, a replayed fire must not do anything.
	if room.ActivateIfCurrent(current) {
		t.Fatalf("second fire of current generation activated again")
	}
}
