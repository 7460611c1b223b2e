// persistence/codec.go
package persistence

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/wfunc/meiro/models"
)

// EncodeRoom packs a RoomState checkpoint. Field names follow the json tags
// so the checkpoint and the debug JSON dump use the same keys.
func EncodeRoom(st *models.RoomState) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(st); err != nil {
		return nil, fmt.Errorf("encode room %s: %w", st.ID, err)
	}
	return buf.Bytes(), nil
}

func DecodeRoom(data []byte) (*models.RoomState, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var st models.RoomState
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	if st.Sessions == nil {
		st.Sessions = make(map[string]models.SessionInfo)
	}
	if st.Owner.PredictionMarks == nil {
		st.Owner.PredictionMarks = make(map[string]models.Mark)
	}
	if st.Owner.Points == nil {
		st.Owner.Points = make(map[string]models.Point)
	}
	return &st, nil
}

// CloneRoom deep-copies st through the checkpoint codec, so the copy can
// be written from another goroutine while the room keeps mutating st.
func CloneRoom(st *models.RoomState) (*models.RoomState, error) {
	data, err := EncodeRoom(st)
	if err != nil {
		return nil, err
	}
	return DecodeRoom(data)
}
