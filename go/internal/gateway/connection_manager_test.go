package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/buzzline/buzzline/go/internal/buzzer"
)

// stubConnection registers a connection without a real socket so fanout
// bookkeeping can be exercised directly.
func stubConnection(cm *ConnectionManager, id string) *Connection {
	conn := &Connection{
		ID:          id,
		Send:        make(chan []byte, 16),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	cm.mu.Lock()
	cm.byID[id] = conn
	cm.mu.Unlock()
	return conn
}

// deliverQueued drains the broadcast queue in order, standing in for the
// Start loop.
func deliverQueued(cm *ConnectionManager) {
	for {
		select {
		case message := <-cm.broadcastCh:
			cm.handleFanout(message)
		default:
			return
		}
	}
}

func receivedType(t *testing.T, conn *Connection) buzzer.EventType {
	t.Helper()
	select {
	case data := <-conn.Send:
		var ev buzzer.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("failed to decode delivered event: %v", err)
		}
		return ev.Type
	default:
		t.Fatalf("connection %s received nothing", conn.ID)
		return ""
	}
}

func assertSilent(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		if ok {
			t.Fatalf("connection %s unexpectedly received %s", conn.ID, string(data))
		}
	default:
	}
}

func TestFanoutBroadcastRespectsRoomGroups(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	member1 := stubConnection(cm, "c1")
	member2 := stubConnection(cm, "c2")
	outsider := stubConnection(cm, "c3")

	cm.JoinRoom("c1", "4217")
	cm.JoinRoom("c2", "4217")

	cm.BroadcastToRoom("4217", buzzer.NewEvent(buzzer.EventBuzzerActive, "4217", buzzer.BuzzerActivePayload{BuzzerState: buzzer.StateActive}))
	deliverQueued(cm)

	if typ := receivedType(t, member1); typ != buzzer.EventBuzzerActive {
		t.Fatalf("member1 received %s, want buzzer-active", typ)
	}
	if typ := receivedType(t, member2); typ != buzzer.EventBuzzerActive {
		t.Fatalf("member2 received %s, want buzzer-active", typ)
	}
	assertSilent(t, outsider)
}

func TestFanoutUnicastTargetsOneConnection(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	target := stubConnection(cm, "c1")
	other := stubConnection(cm, "c2")
	cm.JoinRoom("c1", "4217")
	cm.JoinRoom("c2", "4217")

	cm.SendToConnection("c1", buzzer.NewEvent(buzzer.EventBuzzRecorded, "4217", buzzer.BuzzRecordedPayload{ReactionTime: 120}))
	deliverQueued(cm)

	if typ := receivedType(t, target); typ != buzzer.EventBuzzRecorded {
		t.Fatalf("target received %s, want your-buzz-recorded", typ)
	}
	assertSilent(t, other)
}

func TestBroadcastQueuedBeforeCloseRoomStillDelivered(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	conn := stubConnection(cm, "c1")
	cm.JoinRoom("c1", "4217")

	// The coordinator's host-disconnect order: broadcast first, then tear
	// the group down. The broadcast must reach the members that were in
	// the room when it was queued.
	cm.BroadcastToRoom("4217", buzzer.NewEvent(buzzer.EventRoomClosed, "4217", buzzer.RoomClosedPayload{Message: "Host has left the room"}))
	cm.CloseRoom("4217")
	deliverQueued(cm)

	if typ := receivedType(t, conn); typ != buzzer.EventRoomClosed {
		t.Fatalf("connection received %s, want room-closed", typ)
	}
}

func TestCloseRoomDropsGroupButKeepsConnections(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	conn := stubConnection(cm, "c1")
	cm.JoinRoom("c1", "4217")

	cm.CloseRoom("4217")

	cm.BroadcastToRoom("4217", buzzer.NewEvent(buzzer.EventBuzzerActive, "4217", nil))
	deliverQueued(cm)
	assertSilent(t, conn)

	// The connection is still addressable directly.
	cm.SendToConnection("c1", buzzer.NewEvent(buzzer.EventError, "", buzzer.ErrorPayload{Message: "room does not exist"}))
	deliverQueued(cm)
	if typ := receivedType(t, conn); typ != buzzer.EventError {
		t.Fatalf("connection received %s, want error", typ)
	}
}

func TestFanoutSkipsConnectionClosedAfterEnqueue(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	stale := stubConnection(cm, "c1")
	live := stubConnection(cm, "c2")
	cm.JoinRoom("c1", "4217")
	cm.JoinRoom("c2", "4217")

	cm.BroadcastToRoom("4217", buzzer.NewEvent(buzzer.EventBuzzerActive, "4217", nil))
	cm.unregisterConnection(stale)
	deliverQueued(cm)

	if typ := receivedType(t, live); typ != buzzer.EventBuzzerActive {
		t.Fatalf("live connection received %s, want buzzer-active", typ)
	}
	assertSilent(t, stale)
}

func TestJoinRoomMovesConnectionBetweenGroups(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	stubConnection(cm, "c1")
	cm.JoinRoom("c1", "1111")
	cm.JoinRoom("c1", "2222")

	stats := cm.GetConnectionStats()
	if stats["active_rooms"].(int) != 1 {
		t.Fatalf("active rooms = %d after regroup, want 1", stats["active_rooms"])
	}
	counts := stats["room_connections"].(map[string]int)
	if counts["2222"] != 1 || counts["1111"] != 0 {
		t.Fatalf("room counts = %v, want only 2222 populated", counts)
	}
}
