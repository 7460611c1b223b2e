// room/manager.go
package room

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/session"
	"github.com/wfunc/meiro/state"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomLoader reads every stored checkpoint. persistence.Store implements it.
type RoomLoader interface {
	LoadRooms(ctx context.Context) ([]*models.RoomState, error)
}

// Manager 管理所有房间
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex

	opts  Options
	codes *CodeAllocator

	rndMutex sync.Mutex
	rnd      *rand.Rand
}

// NewRoomManager creates a manager whose rooms share opts. Every room gets
// its own *rand.Rand seeded from rnd, so a fixed seed reproduces a run.
func NewRoomManager(opts Options, rnd *rand.Rand) *Manager {
	m := &Manager{
		rooms: make(map[string]*Room),
		rnd:   rnd,
	}
	m.codes = NewCodeAllocator(rand.New(rand.NewSource(rnd.Int63())))
	m.opts = opts
	return m
}

func (m *Manager) roomOptions() Options {
	opts := m.opts
	m.rndMutex.Lock()
	opts.Rand = rand.New(rand.NewSource(m.rnd.Int63()))
	m.rndMutex.Unlock()
	opts.OnDispose = m.removeRoom
	return opts
}

// GetOrCreate returns the room for id, creating it on first use.
func (m *Manager) GetOrCreate(id string) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, ok := m.rooms[id]; ok {
		return room, false
	}
	room := NewRoom(id, m.roomOptions())
	m.rooms[id] = room
	m.opts.Monitor.SetActiveRooms(len(m.rooms))
	logger.Log.Infow("room created", "room", id)
	return room, true
}

// Create allocates a fresh room code and creates the room.
func (m *Manager) Create() (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	id, err := m.codes.Next(func(code string) bool {
		_, taken := m.rooms[code]
		return taken
	})
	if err != nil {
		return nil, err
	}
	room := NewRoom(id, m.roomOptions())
	m.rooms[id] = room
	m.opts.Monitor.SetActiveRooms(len(m.rooms))
	logger.Log.Infow("room created", "room", id)
	return room, nil
}

// Get 从管理器中获取一个房间
func (m *Manager) Get(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// removeRoom drops r unless id has already been reused by another room.
func (m *Manager) removeRoom(r *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if cur, ok := m.rooms[r.id]; ok && cur == r {
		delete(m.rooms, r.id)
		m.opts.Monitor.SetActiveRooms(len(m.rooms))
	}
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

func (m *Manager) all() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// List summarises every live room, sorted by id.
func (m *Manager) List() []Info {
	var out []Info
	for _, r := range m.all() {
		if info, err := r.Info(); err == nil {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evict closes room id and deletes its checkpoint.
func (m *Manager) Evict(id, reason string) error {
	room, ok := m.Get(id)
	if !ok {
		return ErrRoomNotFound
	}
	return room.Evict(reason)
}

// Restore rebuilds rooms from their checkpoints and re-arms their timers.
// Sockets do not survive a restart, so every session comes back
// disconnected and a running round comes back paused.
func (m *Manager) Restore(ctx context.Context, loader RoomLoader) (int, error) {
	states, err := loader.LoadRooms(ctx)
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := 0
	for _, st := range states {
		if !ValidCode(st.ID) || !st.Phase.Valid() {
			logger.Log.Warnw("skipping invalid checkpoint", "room", st.ID, "phase", st.Phase)
			continue
		}
		if _, exists := m.rooms[st.ID]; exists {
			continue
		}
		m.rooms[st.ID] = RestoreRoom(st, m.roomOptions())
		n++
	}
	m.opts.Monitor.SetActiveRooms(len(m.rooms))
	logger.Log.Infow("rooms restored", "count", n)
	return n, nil
}

// Shutdown closes every room, keeping checkpoints, and waits up to
// timeout for pending writes.
func (m *Manager) Shutdown(timeout time.Duration) {
	rooms := m.all()
	for _, r := range rooms {
		r.Close()
	}
	deadline := time.Now().Add(timeout)
	for _, r := range rooms {
		if !r.WaitSaved(time.Until(deadline)) {
			logger.Log.Warnw("checkpoint flush timed out", "room", r.id)
		}
	}
}

// RestoreRoom rebuilds a room from a checkpoint and starts its loop.
func RestoreRoom(st *models.RoomState, opts Options) *Room {
	opts = opts.withDefaults()
	if st.Durations.Countdown <= 0 || st.Durations.Prep <= 0 || st.Durations.Explore <= 0 {
		st.Durations = opts.Durations
	}
	st.Seq += RestoreSeqGap
	r := newRoom(st, opts)
	r.post(func() { r.restore() })
	return r
}

func (r *Room) restore() {
	now := r.now()
	st := r.st

	if st.Phase == state.PhaseLobby {
		// lobby seats are only held while connected
		for id := range st.Sessions {
			delete(st.Sessions, id)
		}
	}
	for id, info := range st.Sessions {
		r.sessions.Add(session.Restore(info, st.ID, now))
		info.Connected = false
		st.Sessions[id] = info
	}
	r.machine.Restore(st.Phase)

	switch {
	case st.Pause.Paused:
		r.scheduleDisconnectAlarm()
	case st.Phase.Pausable():
		role := models.RolePlayer
		if _, ok := r.sessions.GetByRole(role); !ok {
			role = models.RoleOwner
		}
		r.pause(role, now)
	default:
		r.scheduleIdle()
	}
	logger.Log.Infow("room restored", "room", r.id, "phase", st.Phase, "paused", st.Pause.Paused, "seq", st.Seq)
	r.checkpoint()
}
