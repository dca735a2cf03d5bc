package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/aadithya-v/focusflow"
	"github.com/aadithya-v/focusflow/internal/logging"
	"github.com/aadithya-v/focusflow/internal/metrics"
)

const (
	wsWriteWait = 10 * time.Second
)

type joinRoomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
	Status string `json:"status" validate:"omitempty,oneof=focus break idle"`
}

type leaveRoomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type roomStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=focus break idle"`
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	claims := claimsFrom(r.Context())
	device, location := s.svc.ExtractRequestInfo(r)

	err := s.svc.JoinRoom(r.Context(), req.RoomID, claims.Subject, focusflow.PresenceData{
		Name:     claims.Name,
		Avatar:   claims.Avatar,
		Status:   req.Status,
		Device:   &device,
		Location: &location,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "roomId": req.RoomID})
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req leaveRoomRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := s.svc.LeaveRoom(r.Context(), req.RoomID, claimsFrom(r.Context()).Subject); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRoomPresence(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	users := s.svc.GetRoomPresence(r.Context(), roomID)
	writeJSON(w, http.StatusOK, map[string]any{
		"roomId":        roomID,
		"users":         users,
		"activeMembers": len(users),
	})
}

func (s *Server) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	var req roomStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	roomID := chi.URLParam(r, "roomID")
	if err := s.svc.SetUserStatus(r.Context(), claimsFrom(r.Context()).Subject, req.Status, roomID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": req.Status})
}

// handleRoomEvents streams the room's events over a websocket until either
// side goes away.
func (s *Server) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	log := logging.Ctx(r.Context()).With().Str("room_id", roomID).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := s.svc.SubscribeRoom(ctx, roomID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.WebSocketSubscribers.Inc()
	defer metrics.WebSocketSubscribers.Dec()

	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader: clients send nothing meaningful; a read error means they left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("Failed to encode room event")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("Websocket write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
