package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/rules"
	"github.com/wfunc/meiro/state"
)

func sampleRoom(t *testing.T, id string) *models.RoomState {
	t.Helper()
	st := models.NewRoomState(id, 1000, state.DefaultDurations(5*time.Minute))
	m, err := maze.Generate(maze.Options{Size: 20, Seed: 7})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	st.Maze = m
	st.Phase = state.PhasePrep
	st.Owner = rules.NewOwnerState(20)
	st.Player = rules.NewPlayerState(m.Start)
	st.Owner.Points["3,4"] = models.Point{Cell: maze.Cell{X: 3, Y: 4}, Value: 5, PlacedAt: 1200}
	st.Owner.PredictionMarks["1,1"] = models.Mark{Cell: maze.Cell{X: 1, Y: 1}, PlacedAt: 1300}
	st.Sessions["s1"] = models.SessionInfo{ID: "s1", Role: models.RoleOwner, Nickname: "amy", Connected: true}
	st.Pause = models.PauseState{Paused: true, Reason: "disconnect", Role: models.RolePlayer, RemainingMs: 4200, Phase: state.PhasePrep}
	st.Seq = 17
	return st
}

func TestCodec_RoundTrip(t *testing.T) {
	st := sampleRoom(t, "ABCD")
	data, err := EncodeRoom(st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRoom(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ID != "ABCD" || got.Phase != state.PhasePrep || got.Seq != 17 {
		t.Errorf("header mismatch: %+v", got)
	}
	if got.Maze == nil || got.Maze.Grid.Encode() != st.Maze.Grid.Encode() {
		t.Fatal("maze grid not preserved")
	}
	if got.Maze.Start != st.Maze.Start || got.Maze.Goal != st.Maze.Goal {
		t.Errorf("start/goal mismatch")
	}
	if got.Owner.Points["3,4"].Value != 5 {
		t.Errorf("points not preserved: %+v", got.Owner.Points)
	}
	if got.Owner.WallStock != st.Owner.WallStock {
		t.Errorf("wall stock %d != %d", got.Owner.WallStock, st.Owner.WallStock)
	}
	if !got.Pause.Paused || got.Pause.RemainingMs != 4200 || got.Pause.Role != models.RolePlayer {
		t.Errorf("pause not preserved: %+v", got.Pause)
	}
	if got.Durations.Explore != 5*time.Minute {
		t.Errorf("durations not preserved: %+v", got.Durations)
	}
	if got.Sessions["s1"].Nickname != "amy" {
		t.Errorf("sessions not preserved")
	}
}

func TestCodec_EmptyMapsRestored(t *testing.T) {
	st := &models.RoomState{ID: "X"}
	data, err := EncodeRoom(st)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRoom(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sessions == nil || got.Owner.Points == nil || got.Owner.PredictionMarks == nil {
		t.Fatal("decoded room must have non-nil maps")
	}
	if got.Maze != nil {
		t.Fatal("nil maze should stay nil")
	}
}

func TestMemoryStore_Rooms(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.SaveRoom(ctx, sampleRoom(t, "B")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRoom(ctx, sampleRoom(t, "A")); err != nil {
		t.Fatal(err)
	}
	// overwrite
	again := sampleRoom(t, "A")
	again.Seq = 99
	if err := s.SaveRoom(ctx, again); err != nil {
		t.Fatal(err)
	}

	rooms, err := s.LoadRooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 || rooms[0].ID != "A" || rooms[1].ID != "B" {
		t.Fatalf("unexpected rooms: %d", len(rooms))
	}
	if rooms[0].Seq != 99 {
		t.Errorf("expected overwritten seq 99, got %d", rooms[0].Seq)
	}

	if err := s.DeleteRoom(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRoom(ctx, "A"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMemoryStore_Records(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		rec := models.GameRecord{ID: string(rune('a' + i)), RoomID: "R", Round: i, CreatedAt: int64(i)}
		if err := s.SaveGameRecord(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ListGameRecords(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "e" || got[2].ID != "c" {
		t.Fatalf("expected newest first, got %+v", got)
	}
	all, _ := s.ListGameRecords(ctx, 0)
	if len(all) != 5 {
		t.Fatalf("expected 5 with default limit, got %d", len(all))
	}
}
