// room/room.go
package room

import (
	"errors"
	"runtime/debug"
	"time"

	"github.com/wfunc/meiro/broadcast"
	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/monitor"
	"github.com/wfunc/meiro/network"
	"github.com/wfunc/meiro/rules"
	"github.com/wfunc/meiro/session"
	"github.com/wfunc/meiro/state"
	"github.com/wfunc/meiro/timer"
)

// 房间参数
const (
	Capacity            = 2
	DefaultTickInterval = 50 * time.Millisecond
	HeartbeatTimeout    = 15 * time.Second
	DisconnectTimeout   = 60 * time.Second
	DefaultLobbyTimeout = 5 * time.Minute

	PauseReasonDisconnect = "disconnect"
	RematchTarget         = "rematch"

	// 恢复时 seq 前移的余量；tick 的 diff 不落检查点，检查点里的 seq 会落后
	RestoreSeqGap = 1 << 20

	mailboxSize = 256
	maxNickname = 16
)

// stepDt is the simulated time of one tick. It stays fixed even when the
// ticker runs at another rate, so physics is reproducible.
var stepDt = DefaultTickInterval.Seconds()

var ErrRoomClosed = errors.New("room closed")

// Options configures a room. Zero values take defaults, except Scheduler
// which is required.
type Options struct {
	Durations    state.Durations
	LobbyTimeout time.Duration
	MazeAttempts int
	TickInterval time.Duration

	Scheduler timer.Scheduler
	Store     Checkpointer
	Records   ResultRecorder
	Monitor   *monitor.Monitor
	Now       func() time.Time
	Rand      Rand

	// OnDispose runs on the room loop once the room has shut down.
	OnDispose func(r *Room)
}

func (o Options) withDefaults() Options {
	if o.Durations.Countdown <= 0 || o.Durations.Prep <= 0 || o.Durations.Explore <= 0 {
		o.Durations = state.DefaultDurations(o.Durations.Explore)
	}
	if o.LobbyTimeout <= 0 {
		o.LobbyTimeout = DefaultLobbyTimeout
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Scheduler == nil {
		panic("room: Options.Scheduler is required")
	}
	if o.Rand == nil {
		panic("room: Options.Rand is required")
	}
	return o
}

// Info is a read-only summary of a room.
type Info struct {
	ID        string               `json:"id"`
	Phase     state.Phase          `json:"phase"`
	Paused    bool                 `json:"paused"`
	Round     int                  `json:"round"`
	MazeSize  int                  `json:"maze_size"`
	Sessions  []models.SessionInfo `json:"sessions"`
	CreatedAt int64                `json:"created_at"`
}

// Room 房间
//
// A room is an actor: every read and write of st happens on the loop
// goroutine, fed by the mailbox and the tick ticker. Callers outside the
// loop go through post or call.
type Room struct {
	id   string
	opts Options

	st          *models.RoomState
	machine     state.StateMachine
	rules       *rules.Manager
	sessions    *session.Manager
	broadcaster broadcast.Broadcaster
	composer    *broadcast.Composer
	saver       *saver

	// alarm generations; a fired callback whose generation is stale is ignored
	phaseGen uint64
	pauseGen uint64
	idleGen  uint64

	mailbox  chan func()
	done     chan struct{}
	disposed bool
}

// NewRoom creates an empty lobby and starts its loop.
func NewRoom(id string, opts Options) *Room {
	opts = opts.withDefaults()
	st := models.NewRoomState(id, opts.Now().UnixMilli(), opts.Durations)
	r := newRoom(st, opts)
	r.post(func() {
		r.scheduleIdle()
		r.checkpoint()
	})
	return r
}

func newRoom(st *models.RoomState, opts Options) *Room {
	r := &Room{
		id:       st.ID,
		opts:     opts,
		st:       st,
		machine:  state.NewMachine(st.Phase),
		rules:    rules.NewManager(opts.Rand),
		sessions: session.NewManager(),
		composer: broadcast.NewComposer(st.Seq),
		mailbox:  make(chan func(), mailboxSize),
		done:     make(chan struct{}),
	}
	r.broadcaster = broadcast.NewRoomBroadcaster(st.ID, r.sessions)
	if opts.Store != nil {
		r.saver = newSaver(st.ID, opts.Store)
	}

	r.machine.AddTransition(state.PhaseLobby, state.PhaseCountdown, r.playerConnected)
	r.machine.OnExit(state.PhasePrep, func(state.Phase) { r.lockTarget() })
	r.machine.OnEnter(state.PhaseResult, func(state.Phase) { r.recordResult() })

	go r.loop()
	return r
}

func (r *Room) ID() string {
	return r.id
}

// Done is closed when the room loop has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) now() time.Time {
	return r.opts.Now()
}

func (r *Room) key(name string) string {
	return r.id + ":" + name
}

// loop 房间主循环
func (r *Room) loop() {
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-r.mailbox:
			r.safely(fn)
		case <-ticker.C:
			r.safely(r.tick)
		}
		if r.disposed {
			close(r.done)
			return
		}
	}
}

func (r *Room) safely(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorw("room handler panic", "room", r.id, "panic", p, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// post queues fn for the loop. It reports false once the room is gone.
func (r *Room) post(fn func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.mailbox <- fn:
		return true
	case <-r.done:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (r *Room) call(fn func()) bool {
	finished := make(chan struct{})
	if !r.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-r.done:
		// done is closed after the last handler returns
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

// Info returns a summary of the room.
func (r *Room) Info() (Info, error) {
	var info Info
	ok := r.call(func() {
		info = Info{
			ID:        r.st.ID,
			Phase:     r.st.Phase,
			Paused:    r.st.Pause.Paused,
			Round:     r.st.Round,
			MazeSize:  r.st.MazeSize,
			CreatedAt: r.st.CreatedAt,
			Sessions:  r.sessionInfos(),
		}
	})
	if !ok {
		return info, ErrRoomClosed
	}
	return info, nil
}

// State returns a deep copy of the room state.
func (r *Room) State() (*models.RoomState, error) {
	var (
		cp  *models.RoomState
		err error
	)
	if !r.call(func() { cp, err = cloneState(r.st) }) {
		return nil, ErrRoomClosed
	}
	return cp, err
}

// Evict closes every connection and removes the room and its checkpoint.
func (r *Room) Evict(reason string) error {
	if !r.call(func() { r.evict(reason) }) {
		return ErrRoomClosed
	}
	return nil
}

// Close stops the room but keeps its checkpoint, so a restarted process
// can restore it.
func (r *Room) Close() {
	r.call(func() {
		r.checkpoint()
		r.closeAll(0, "server shutting down", nil)
		r.dispose(false)
	})
}

// WaitSaved blocks until pending checkpoint writes are done or timeout.
func (r *Room) WaitSaved(timeout time.Duration) bool {
	if r.saver == nil {
		return true
	}
	select {
	case <-r.saver.stopped:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (r *Room) dispose(removeCheckpoint bool) {
	if r.disposed {
		return
	}
	r.disposed = true

	r.phaseGen++
	r.pauseGen++
	r.idleGen++
	r.opts.Scheduler.Cancel(r.key("phase"))
	r.opts.Scheduler.Cancel(r.key("disconnect"))
	r.opts.Scheduler.Cancel(r.key("idle"))

	for _, s := range r.sessions.All() {
		if conn, ok := s.Detach(s.ConnID()); ok {
			closeAsync(conn, network.CloseGoingAway, "room closed")
			r.opts.Monitor.DecOnlineSessions()
		}
	}

	if r.saver != nil {
		if removeCheckpoint {
			r.saver.delete()
		}
		r.saver.close()
	}
	logger.Log.Infow("room disposed", "room", r.id, "phase", r.st.Phase)

	if r.opts.OnDispose != nil {
		r.opts.OnDispose(r)
	}
}

func (r *Room) playerConnected() bool {
	s, ok := r.sessions.GetByRole(models.RolePlayer)
	return ok && s.Connected()
}

func (r *Room) sessionInfos() []models.SessionInfo {
	out := make([]models.SessionInfo, 0, len(r.st.Sessions))
	for _, role := range []models.Role{models.RoleOwner, models.RolePlayer} {
		if info, ok := r.st.SessionByRole(role); ok {
			out = append(out, info)
		}
	}
	return out
}
