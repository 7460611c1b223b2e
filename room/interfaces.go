package room

import (
	"context"

	"github.com/wfunc/meiro/models"
)

// Checkpointer persists room state so timers and rounds survive a restart.
// persistence.Store implements it.
type Checkpointer interface {
	SaveRoom(ctx context.Context, st *models.RoomState) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// ResultRecorder stores finished rounds. services.RecordService implements it.
type ResultRecorder interface {
	BuildRecord(st *models.RoomState) (models.GameRecord, error)
	Save(ctx context.Context, rec models.GameRecord) error
}

// Rand is the randomness a room draws from: maze seeds, role swaps and
// the bonus deck shuffle. *rand.Rand implements it; it is only used from
// the room loop.
type Rand interface {
	Intn(n int) int
	Int63() int64
	Shuffle(n int, swap func(i, j int))
}
