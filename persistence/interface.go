// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/meiro/models"
)

// Store 房间检查点与对局记录的存储接口
type Store interface {
	SaveRoom(ctx context.Context, st *models.RoomState) error
	LoadRooms(ctx context.Context) ([]*models.RoomState, error)
	DeleteRoom(ctx context.Context, roomID string) error
	SaveGameRecord(ctx context.Context, record models.GameRecord) error
	ListGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)

// DefaultRecordLimit caps ListGameRecords when limit <= 0.
const DefaultRecordLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultRecordLimit
	}
	return limit
}
