// services/record_service.go
package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/persistence"
)

// RecordService 对局记录
type RecordService struct {
	db    persistence.Store
	newID func() string
}

func NewRecordService(db persistence.Store) *RecordService {
	return &RecordService{
		db:    db,
		newID: func() string { return uuid.New().String() },
	}
}

// BuildRecord 从结算状态生成对局记录
func (s *RecordService) BuildRecord(st *models.RoomState) (models.GameRecord, error) {
	if st.Result == nil {
		return models.GameRecord{}, fmt.Errorf("room %s has no result", st.ID)
	}

	players := make([]models.SessionInfo, 0, len(st.Sessions))
	for _, info := range st.Sessions {
		players = append(players, info)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Role < players[j].Role })

	var seed int64
	if st.Maze != nil {
		seed = st.Maze.Seed
	}

	return models.GameRecord{
		ID:          s.newID(),
		RoomID:      st.ID,
		Round:       st.Round,
		MazeSize:    st.MazeSize,
		Seed:        seed,
		Reason:      st.Result.Reason,
		Score:       st.Result.Score,
		TargetScore: st.Result.Target,
		Players:     players,
		DurationMs:  st.Result.ElapsedMs,
		WalkoutRole: st.Result.WalkoutRole,
		CreatedAt:   st.Result.At,
	}, nil
}

// Save 保存对局记录
func (s *RecordService) Save(ctx context.Context, rec models.GameRecord) error {
	if err := s.db.SaveGameRecord(ctx, rec); err != nil {
		return fmt.Errorf("save game record %s: %w", rec.ID, err)
	}
	return nil
}

// RecordResult builds and stores the record for a finished round.
func (s *RecordService) RecordResult(ctx context.Context, st *models.RoomState) (models.GameRecord, error) {
	rec, err := s.BuildRecord(st)
	if err != nil {
		return rec, err
	}
	return rec, s.Save(ctx, rec)
}

// Recent 最近的对局记录，最新的在前
func (s *RecordService) Recent(ctx context.Context, limit int) ([]models.GameRecord, error) {
	return s.db.ListGameRecords(ctx, limit)
}
