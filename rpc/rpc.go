package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/room"
	"github.com/wfunc/meiro/state"
)

// ServiceName is the name GameService methods are registered under,
// e.g. "GameService.ListRooms".
const ServiceName = "GameService"

const queryTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers svc.
func NewServer(addr string, svc *GameService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, svc); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the bound address, useful when addr used port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomDirectory is what the admin service needs from room.Manager.
type RoomDirectory interface {
	List() []room.Info
	Evict(id, reason string) error
}

// ResultSource is what the admin service needs from services.RecordService.
type ResultSource interface {
	Recent(ctx context.Context, limit int) ([]models.GameRecord, error)
}

// GameService exposes host operations over net/rpc. Methods follow the
// net/rpc shape: exported args, pointer reply, error result.
type GameService struct {
	rooms   RoomDirectory
	results ResultSource
}

func NewGameService(rooms RoomDirectory, results ResultSource) *GameService {
	return &GameService{rooms: rooms, results: results}
}

// ListRoomsArgs filters by phase when Phase is set.
type ListRoomsArgs struct {
	Phase state.Phase
}

type ListRoomsReply struct {
	Rooms []room.Info
}

func (gs *GameService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, info := range gs.rooms.List() {
		if args.Phase == "" || info.Phase == args.Phase {
			reply.Rooms = append(reply.Rooms, info)
		}
	}
	return nil
}

type EvictRoomArgs struct {
	RoomID string
	Reason string
}

type EvictRoomReply struct {
	Evicted bool
}

// EvictRoom closes a room, notifies its clients and deletes its checkpoint.
func (gs *GameService) EvictRoom(args *EvictRoomArgs, reply *EvictRoomReply) error {
	reason := args.Reason
	if reason == "" {
		reason = "evicted by host"
	}
	if err := gs.rooms.Evict(args.RoomID, reason); err != nil {
		return err
	}
	logger.Log.Infow("room evicted over rpc", "room", args.RoomID, "reason", reason)
	reply.Evicted = true
	return nil
}

type RecentResultsArgs struct {
	Limit int
}

type RecentResultsReply struct {
	Records []models.GameRecord
}

func (gs *GameService) RecentResults(args *RecentResultsArgs, reply *RecentResultsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	records, err := gs.results.Recent(ctx, args.Limit)
	if err != nil {
		return err
	}
	reply.Records = records
	return nil
}
