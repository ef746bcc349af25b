package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/buzzline/buzzline/go/internal/buzzer"
)

// CommandHandler consumes decoded client traffic. The connection manager
// calls it once per inbound message and once when a connection drops.
type CommandHandler interface {
	HandleCommand(connectionID string, cmd buzzer.Command)
	HandleDisconnect(connectionID string)
}

// ConnectionManager owns every WebSocket connection and the room broadcast
// groups. It implements buzzer.Broadcaster.
type ConnectionManager struct {
	// Connection pools organized by room id, plus a flat index for unicasts
	byID            map[string]*Connection
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  CommandHandler

	broadcastCh chan broadcastMessage
}

// Connection represents a WebSocket connection to a client.
type Connection struct {
	ID      string
	RoomID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// sendMu and closed fence Send against the pumps closing it while a
	// fanout is mid-delivery.
	sendMu    sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// send queues data for the write pump. Closed connections swallow the
// message; false means the buffer is saturated and the caller should
// tear the connection down.
func (c *Connection) send(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// broadcastMessage is one queued fanout with its targets resolved at
// enqueue time, so a broadcast queued just before its room's teardown
// still reaches the connections that were in the room.
type broadcastMessage struct {
	targets []*Connection
	event   *buzzer.Event
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		byID:            make(map[string]*Connection),
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// SetCommandHandler wires the consumer of inbound traffic. Must be called
// before the first upgrade.
func (cm *ConnectionManager) SetCommandHandler(handler CommandHandler) {
	cm.handler = handler
}

// Start begins processing queued fanout messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleFanout(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. Connections
// start outside any room; the coordinator groups them on create/join.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.mu.Lock()
	cm.byID[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// JoinRoom binds a connection to a room's broadcast group.
func (cm *ConnectionManager) JoinRoom(connectionID, roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.byID[connectionID]
	if !ok {
		return
	}
	if conn.RoomID != "" {
		cm.leaveRoomLocked(conn)
	}
	conn.RoomID = roomID
	if cm.roomConnections[roomID] == nil {
		cm.roomConnections[roomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomID][conn] = true

	log.Debug().
		Str("connection_id", connectionID).
		Str("room_id", roomID).
		Int("room_connections", len(cm.roomConnections[roomID])).
		Msg("connection joined room group")
}

// CloseRoom drops a room's broadcast group. The connections themselves stay
// open; clients are told separately that the room is gone.
func (cm *ConnectionManager) CloseRoom(roomID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for conn := range cm.roomConnections[roomID] {
		conn.RoomID = ""
	}
	delete(cm.roomConnections, roomID)
}

// BroadcastToRoom sends an event to all connections in a room.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event *buzzer.Event) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.roomConnections[roomID]))
	for conn := range cm.roomConnections[roomID] {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	select {
	case cm.broadcastCh <- broadcastMessage{targets: targets, event: event}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
	}
}

// SendToConnection sends an event to a single connection.
func (cm *ConnectionManager) SendToConnection(connectionID string, event *buzzer.Event) {
	cm.mu.RLock()
	var targets []*Connection
	if conn, ok := cm.byID[connectionID]; ok {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	select {
	case cm.broadcastCh <- broadcastMessage{targets: targets, event: event}:
	default:
		log.Warn().Str("connection_id", connectionID).Msg("broadcast channel full, dropping message")
	}
}

// handleFanout delivers one queued message.
func (cm *ConnectionManager) handleFanout(message broadcastMessage) {
	if len(message.targets) == 0 {
		return
	}

	// Marshal the event once
	eventData, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for fanout")
		return
	}

	for _, conn := range message.targets {
		if conn.send(eventData) {
			continue
		}
		// Connection is slow/dead, close it
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.event.Type)).
		Str("room_id", message.event.RoomID).
		Int("connections", len(message.targets)).
		Msg("event delivered")
}

// unregisterConnection removes a connection from the manager and notifies
// the command handler exactly once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.byID[conn.ID]
	if exists {
		delete(cm.byID, conn.ID)
		cm.leaveRoomLocked(conn)
	}
	cm.mu.Unlock()

	if exists {
		conn.sendMu.Lock()
		conn.closed = true
		close(conn.Send)
		conn.sendMu.Unlock()
	}

	conn.closeOnce.Do(func() {
		log.Info().
			Str("connection_id", conn.ID).
			Msg("connection unregistered")
		if cm.handler != nil {
			cm.handler.HandleDisconnect(conn.ID)
		}
	})
}

// leaveRoomLocked removes the connection from its room group. Caller holds
// cm.mu.
func (cm *ConnectionManager) leaveRoomLocked(conn *Connection) {
	if conn.RoomID == "" {
		return
	}
	if pool, ok := cm.roomConnections[conn.RoomID]; ok {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.roomConnections, conn.RoomID)
		}
	}
	conn.RoomID = ""
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int)
	for roomID, connections := range cm.roomConnections {
		roomCounts[roomID] = len(connections)
	}

	return map[string]interface{}{
		"total_connections": len(cm.byID),
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes an inbound command envelope and hands it to
// the command handler.
func (c *Connection) handleClientMessage(message []byte) {
	var cmd buzzer.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("dropping malformed client message")
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("command", string(cmd.Type)).
		Msg("received client command")

	if c.Manager.handler != nil {
		c.Manager.handler.HandleCommand(c.ID, cmd)
	}
}
