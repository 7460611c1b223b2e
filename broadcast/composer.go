// broadcast/composer.go
package broadcast

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/protocol"
)

// Composer turns room state into STATE frames. It remembers the bytes of
// every top-level field it last sent so a diff carries only what changed,
// and it numbers frames with a strictly increasing seq.
type Composer struct {
	seq  uint64
	last map[string]json.RawMessage
}

// NewComposer continues numbering after seq, so a restored room never
// reuses a sequence number.
func NewComposer(seq uint64) *Composer {
	return &Composer{seq: seq, last: make(map[string]json.RawMessage)}
}

func (c *Composer) Seq() uint64 {
	return c.seq
}

func encodeFields(st *models.RoomState) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	for name, v := range view(st) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Full composes a complete snapshot.
func (c *Composer) Full(st *models.RoomState) (*protocol.State, error) {
	fields, err := encodeFields(st)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	c.last = fields
	c.seq++
	st.Seq = c.seq
	return protocol.NewSnapshot(c.seq, snapshot), nil
}

// Diff composes the fields that changed since the last frame. It returns
// nil when nothing changed; no seq is spent on an empty diff.
func (c *Composer) Diff(st *models.RoomState) (*protocol.State, error) {
	fields, err := encodeFields(st)
	if err != nil {
		return nil, err
	}
	changes := make(map[string]json.RawMessage)
	for name, data := range fields {
		if prev, ok := c.last[name]; !ok || !bytes.Equal(prev, data) {
			changes[name] = data
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}
	for name, data := range changes {
		c.last[name] = data
	}
	c.seq++
	st.Seq = c.seq
	return protocol.NewDiff(c.seq, changes), nil
}
