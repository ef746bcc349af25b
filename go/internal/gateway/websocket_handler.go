package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/buzzline/buzzline/go/internal/buzzer"
)

// WebSocketHandler upgrades client connections and translates their command
// envelopes into coordinator calls.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	coordinator       *buzzer.SessionCoordinator
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, coordinator *buzzer.SessionCoordinator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		coordinator:       coordinator,
	}
}

// HandleConnection handles WebSocket upgrade requests.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
	// Connection is now handled by the connection manager
}

// HandleCommand routes a decoded command envelope to the coordinator.
func (h *WebSocketHandler) HandleCommand(connectionID string, cmd buzzer.Command) {
	switch cmd.Type {
	case buzzer.CmdCreateRoom:
		var payload buzzer.CreateRoomPayload
		if cmd.Data != nil {
			if err := json.Unmarshal(cmd.Data, &payload); err != nil {
				h.rejectPayload(connectionID, cmd.Type, err)
				return
			}
		}
		h.coordinator.CreateRoom(connectionID, payload.IdentityPolicy)

	case buzzer.CmdJoinRoom:
		var payload buzzer.JoinRoomPayload
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			h.rejectPayload(connectionID, cmd.Type, err)
			return
		}
		h.coordinator.JoinRoom(connectionID, payload.RoomID, payload.PlayerNum)

	case buzzer.CmdRejoinRoom:
		var payload buzzer.RejoinRoomPayload
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			h.rejectPayload(connectionID, cmd.Type, err)
			return
		}
		h.coordinator.RejoinRoom(connectionID, payload.RoomID, payload.ParticipantID)

	case buzzer.CmdStartCountdown:
		var payload buzzer.StartCountdownPayload
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			h.rejectPayload(connectionID, cmd.Type, err)
			return
		}
		h.coordinator.StartCountdown(connectionID, payload.RoomID, payload.CountdownSeconds)

	case buzzer.CmdBuzz:
		var payload buzzer.BuzzCommandPayload
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			h.rejectPayload(connectionID, cmd.Type, err)
			return
		}
		h.coordinator.Buzz(connectionID, payload.RoomID, payload.ClientTimestamp)

	case buzzer.CmdEndRound:
		var payload buzzer.RoomRef
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			h.rejectPayload(connectionID, cmd.Type, err)
			return
		}
		h.coordinator.EndRound(connectionID, payload.RoomID)

	case buzzer.CmdResetBuzzer:
		var payload buzzer.RoomRef
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			h.rejectPayload(connectionID, cmd.Type, err)
			return
		}
		h.coordinator.ResetBuzzer(connectionID, payload.RoomID)

	default:
		log.Warn().
			Str("connection_id", connectionID).
			Str("command", string(cmd.Type)).
			Msg("unknown command type - ignoring")
	}
}

// HandleDisconnect forwards a transport-level drop to the coordinator.
func (h *WebSocketHandler) HandleDisconnect(connectionID string) {
	h.coordinator.Disconnect(connectionID)
}

// rejectPayload reports a malformed command payload back to its sender.
func (h *WebSocketHandler) rejectPayload(connectionID string, cmdType buzzer.CommandType, err error) {
	log.Warn().
		Err(err).
		Str("connection_id", connectionID).
		Str("command", string(cmdType)).
		Msg("malformed command payload")
	h.connectionManager.SendToConnection(connectionID, buzzer.NewEvent(buzzer.EventError, "", buzzer.ErrorPayload{
		Message: fmt.Sprintf("malformed %s payload", cmdType),
	}))
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	w.Write([]byte("{"))
	w.Write([]byte("\"total_connections\":" + strconv.Itoa(stats["total_connections"].(int)) + ","))
	w.Write([]byte("\"active_rooms\":" + strconv.Itoa(stats["active_rooms"].(int))))
	w.Write([]byte("}"))
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
