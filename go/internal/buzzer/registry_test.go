package buzzer

import "testing"

func TestRegistryCreateGetDelete(t *testing.T) {
	reg := NewRoomRegistry()

	room := reg.Create("host-conn", NewIdentityPolicy(PolicyExplicit))
	if room.ID == "" {
		t.Fatalf("created room has empty id")
	}
	if room.State != StateStandby || room.CurrentRound != 1 {
		t.Fatalf("new room = state %s round %d, want standby round 1", room.State, room.CurrentRound)
	}

	got, ok := reg.Get(room.ID)
	if !ok || got != room {
		t.Fatalf("Get(%q) = (%v, %v), want the created room", room.ID, got, ok)
	}

	reg.Delete(room.ID)
	if _, ok := reg.Get(room.ID); ok {
		t.Fatalf("room still resolvable after Delete")
	}
}

func TestRegistryRetriesOnIDCollision(t *testing.T) {
	reg := NewRoomRegistry()
	ids := []string{"1111", "1111", "2222"}
	calls := 0
	reg.generateID = func() string {
		id := ids[calls]
		calls++
		return id
	}

	first := reg.Create("h1", NewIdentityPolicy(PolicyExplicit))
	second := reg.Create("h2", NewIdentityPolicy(PolicyExplicit))

	if first.ID != "1111" || second.ID != "2222" {
		t.Fatalf("ids = (%q, %q), want (1111, 2222)", first.ID, second.ID)
	}
	if calls != 3 {
		t.Fatalf("generator called %d times, want 3 (one retry)", calls)
	}
}

func TestRegistryFindByConnection(t *testing.T) {
	reg := NewRoomRegistry()
	room := reg.Create("host-conn", NewIdentityPolicy(PolicyExplicit))
	p := &Participant{ID: "p1", ConnectionID: "conn-1", Name: "1"}
	room.Participants[p.ID] = p

	if got := reg.FindByHostConnection("host-conn"); got != room {
		t.Fatalf("FindByHostConnection = %v, want the room", got)
	}
	if got := reg.FindByHostConnection("stranger"); got != nil {
		t.Fatalf("FindByHostConnection(stranger) = %v, want nil", got)
	}

	gotRoom, gotP := reg.FindByParticipantConnection("conn-1")
	if gotRoom != room || gotP != p {
		t.Fatalf("FindByParticipantConnection = (%v, %v), want (room, p1)", gotRoom, gotP)
	}
	if gotRoom, gotP := reg.FindByParticipantConnection("nope"); gotRoom != nil || gotP != nil {
		t.Fatalf("FindByParticipantConnection(nope) returned a match")
	}
}
