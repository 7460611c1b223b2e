package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/network"
	"github.com/wfunc/meiro/room"
)

const readHeaderTimeout = 10 * time.Second

type GameServer struct {
	addr     string
	upgrader websocket.Upgrader
	rooms    *room.Manager
	router   *mux.Router
	http     *http.Server
}

func NewGameServer(addr string, rooms *room.Manager) *GameServer {
	s := &GameServer{
		addr:  addr,
		rooms: rooms,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/rooms", s.handleCreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms", s.handleListRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomId}/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.router = r

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *GameServer) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown.
func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests. Hijacked websockets are not tracked
// by http.Server; rooms close them on their own shutdown.
func (s *GameServer) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnw("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
	WSPath string `json:"wsPath"`
}

// handleCreateRoom allocates a fresh room code.
func (s *GameServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.rooms.Create()
	if err != nil {
		logger.Log.Errorw("create room failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomID: rm.ID(),
		WSPath: "/rooms/" + rm.ID() + "/ws",
	})
}

func (s *GameServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.rooms.List()})
}

// handleWebSocket upgrades GET /rooms/{roomId}/ws?session=&role=&nick=
// and hands the socket to the room. A missing room is created on demand.
func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if !room.ValidCode(roomID) {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	q := r.URL.Query()
	req := room.JoinRequest{
		SessionID: q.Get("session"),
		Role:      models.Role(q.Get("role")),
		Nickname:  q.Get("nick"),
	}
	if req.Role != "" && !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "role must be owner or player")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)

	rm, created := s.rooms.GetOrCreate(roomID)
	if created {
		logger.Log.Infow("room created on join", "room", roomID)
	}
	sess, err := rm.Join(wsConn, req)
	if err != nil {
		logger.Log.Infow("join rejected", "room", roomID, "remote", wsConn.RemoteAddr(), "error", err)
		return
	}
	logger.Log.Infof("New connection from %s, room %s session %s role %s", wsConn.RemoteAddr(), roomID, sess.ID, sess.Role)

	// read pump runs on the handler goroutine until the socket closes
	wsConn.Serve()
	logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID)
}
