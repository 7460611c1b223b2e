// persistence/memory.go
package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/meiro/models"
)

// MemoryStore keeps encoded checkpoints in process memory. Used when no
// database is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[string][]byte
	records []models.GameRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]byte)}
}

func (m *MemoryStore) SaveRoom(ctx context.Context, st *models.RoomState) error {
	data, err := EncodeRoom(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rooms[st.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadRooms(ctx context.Context) ([]*models.RoomState, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	blobs := make([][]byte, 0, len(ids))
	for _, id := range ids {
		blobs = append(blobs, m.rooms[id])
	}
	m.mu.RUnlock()

	rooms := make([]*models.RoomState, 0, len(blobs))
	for _, b := range blobs {
		st, err := DecodeRoom(b)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, st)
	}
	return rooms, nil
}

func (m *MemoryStore) DeleteRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return ErrRecordNotFound
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *MemoryStore) SaveGameRecord(ctx context.Context, record models.GameRecord) error {
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
	return nil
}

// ListGameRecords returns the newest records first.
func (m *MemoryStore) ListGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	limit = normalizeLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.GameRecord, 0, min(limit, len(m.records)))
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
