package buzzer

import (
	"sync"

	"github.com/buzzline/buzzline/go/internal/roomid"
	"github.com/rs/zerolog/log"
)

// RoomRegistry is the process-wide room table. It owns creation and
// deletion and guarantees one live room per id.
type RoomRegistry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	generateID func() string
}

// NewRoomRegistry returns an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:      make(map[string]*Room),
		generateID: roomid.Generate,
	}
}

// Create generates a fresh room id, retrying on collision, and stores a new
// room owned by the given host connection.
func (r *RoomRegistry) Create(hostConnectionID string, identity IdentityPolicy) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.generateID()
	for _, exists := r.rooms[id]; exists; _, exists = r.rooms[id] {
		id = r.generateID()
	}

	room := NewRoom(id, hostConnectionID, identity)
	r.rooms[id] = room

	log.Info().Str("room_id", id).Str("host_connection", hostConnectionID).Msg("room created")
	return room
}

// Get resolves a room by id.
func (r *RoomRegistry) Get(id string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Delete removes the room. Missing ids are a no-op.
func (r *RoomRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; ok {
		delete(r.rooms, id)
		log.Info().Str("room_id", id).Msg("room deleted")
	}
}

// FindByHostConnection returns the room hosted by the given connection, if
// any. A connection hosts at most one room.
func (r *RoomRegistry) FindByHostConnection(connectionID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if room.HostConnectionID == connectionID {
			return room
		}
	}
	return nil
}

// FindByParticipantConnection returns the room and participant currently
// bound to the given connection, if any.
func (r *RoomRegistry) FindByParticipantConnection(connectionID string) (*Room, *Participant) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if p := room.ParticipantByConnection(connectionID); p != nil {
			return room, p
		}
	}
	return nil, nil
}
