package buzzer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestTrackerExpiryFiresAfterGrace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewReconnectionTracker(clock, 10*time.Second)

	fired := make(chan struct{})
	tracker.Track("4217", "p1", 7, func() { close(fired) })

	clock.Advance(9 * time.Second)
	select {
	case <-fired:
		t.Fatalf("expiry fired before the grace period elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expiry did not fire after the grace period")
	}
}

func TestTrackerCancelStopsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewReconnectionTracker(clock, 10*time.Second)

	fired := make(chan struct{})
	tracker.Track("4217", "p1", 7, func() { close(fired) })

	entry, ok := tracker.Cancel("4217", "p1")
	if !ok {
		t.Fatalf("Cancel found no entry")
	}
	if entry.ReservedNumber != 7 {
		t.Fatalf("entry number = %d, want 7", entry.ReservedNumber)
	}
	if tracker.Pending("4217", "p1") {
		t.Fatalf("entry still pending after Cancel")
	}

	clock.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatalf("expiry fired after Cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerCancelUnknownEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewReconnectionTracker(clock, 10*time.Second)

	if _, ok := tracker.Cancel("4217", "ghost"); ok {
		t.Fatalf("Cancel of unknown entry reported success")
	}
}

func TestTrackerDropRoomCancelsEverything(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewReconnectionTracker(clock, 10*time.Second)

	fired := make(chan string, 2)
	tracker.Track("4217", "p1", 1, func() { fired <- "p1" })
	tracker.Track("4217", "p2", 2, func() { fired <- "p2" })

	tracker.DropRoom("4217")

	if tracker.Pending("4217", "p1") || tracker.Pending("4217", "p2") {
		t.Fatalf("entries still pending after DropRoom")
	}
	clock.Advance(time.Minute)
	select {
	case id := <-fired:
		t.Fatalf("expiry for %s fired after DropRoom", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTrackerClaimIsOneShot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := NewReconnectionTracker(clock, 10*time.Second)

	tracker.Track("4217", "p1", 7, func() {})

	if _, ok := tracker.Claim("4217", "p1"); !ok {
		t.Fatalf("first Claim found no entry")
	}
	if _, ok := tracker.Claim("4217", "p1"); ok {
		t.Fatalf("second Claim found the entry again")
	}
}
