// room/checkpoint.go
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/persistence"
)

const saveTimeout = 5 * time.Second

func cloneState(st *models.RoomState) (*models.RoomState, error) {
	return persistence.CloneRoom(st)
}

// checkpoint hands a copy of the current state to the saver. Only the
// newest pending copy is written.
func (r *Room) checkpoint() {
	if r.saver == nil || r.disposed {
		return
	}
	cp, err := cloneState(r.st)
	if err != nil {
		logger.Log.Errorw("checkpoint encode failed", "room", r.id, "error", err)
		return
	}
	r.saver.save(cp)
}

// saver writes checkpoints off the room loop, one at a time and in order.
type saver struct {
	roomID string
	store  Checkpointer

	mu      sync.Mutex
	latest  *models.RoomState
	remove  bool
	closed  bool
	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

func newSaver(roomID string, store Checkpointer) *saver {
	s := &saver{
		roomID:  roomID,
		store:   store,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *saver) save(st *models.RoomState) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.latest = st
	s.mu.Unlock()
	s.signal()
}

// delete drops any pending write and removes the stored checkpoint.
func (s *saver) delete() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.latest = nil
	s.remove = true
	s.mu.Unlock()
	s.signal()
}

// close flushes what is pending and stops the writer.
func (s *saver) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.quit)
}

func (s *saver) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *saver) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.flush()
		case <-s.quit:
			s.flush()
			return
		}
	}
}

func (s *saver) flush() {
	s.mu.Lock()
	st, remove := s.latest, s.remove
	s.latest, s.remove = nil, false
	s.mu.Unlock()

	if st == nil && !remove {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if st != nil {
		if err := s.store.SaveRoom(ctx, st); err != nil {
			logger.Log.Errorw("checkpoint save failed", "room", s.roomID, "error", err)
		}
	}
	if remove {
		if err := s.store.DeleteRoom(ctx, s.roomID); err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
			logger.Log.Errorw("checkpoint delete failed", "room", s.roomID, "error", err)
		}
	}
}
