package network

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/meiro/protocol"
)

// MockConnection records every frame it is asked to send. When gate is set
// each Send blocks until the test releases it.
type MockConnection struct {
	mu      sync.Mutex
	sent    [][]byte
	at      []time.Time
	gate    chan struct{}
	started chan struct{}
	sendErr error
}

func newMockConnection() *MockConnection {
	return &MockConnection{started: make(chan struct{}, 100)}
}

func (m *MockConnection) Send(data []byte) error {
	m.mu.Lock()
	m.at = append(m.at, time.Now())
	m.mu.Unlock()
	m.started <- struct{}{}
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.sent = append(m.sent, cp)
	return nil
}

func (m *MockConnection) OnMessage(func([]byte))  {}
func (m *MockConnection) OnClose(func())          {}
func (m *MockConnection) Close(int, string) error { return nil }
func (m *MockConnection) RemoteAddr() net.Addr    { return &net.TCPAddr{} }

func (m *MockConnection) frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

func (m *MockConnection) times() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.at...)
}

func waitSent(t *testing.T, m *MockConnection, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f := m.frames(); len(f) >= n {
			return f
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d frames, got %d", n, len(m.frames()))
	return nil
}

func waitStarted(t *testing.T, m *MockConnection) {
	t.Helper()
	select {
	case <-m.started:
	case <-time.After(3 * time.Second):
		t.Fatal("send never started")
	}
}

func diff(seq uint64, field, value string) *protocol.State {
	return protocol.NewDiff(seq, map[string]json.RawMessage{field: json.RawMessage(value)})
}

func decodeState(t *testing.T, data []byte) protocol.State {
	t.Helper()
	var st protocol.State
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return st
}

func TestQueue_MinimumGap(t *testing.T) {
	conn := newMockConnection()
	q := NewQueue(conn, QueueOptions{})
	defer q.Close()

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(protocol.NewEvent("E", i)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitSent(t, conn, 5)
	at := conn.times()
	for i := 1; i < len(at); i++ {
		if gap := at[i].Sub(at[i-1]); gap < MinSendInterval {
			t.Fatalf("frames %d and %d were %v apart", i-1, i, gap)
		}
	}
}

func TestQueue_CoalescesDiffs(t *testing.T) {
	conn := newMockConnection()
	conn.gate = make(chan struct{})
	coalesced := 0
	var mu sync.Mutex
	q := NewQueue(conn, QueueOptions{OnCoalesced: func() { mu.Lock(); coalesced++; mu.Unlock() }})
	defer q.Close()

	q.Enqueue(protocol.NewEvent("FIRST", nil))
	waitStarted(t, conn)

	q.Enqueue(diff(1, "phase", `"prep"`))
	q.Enqueue(diff(2, "player", `{"s":1}`))
	shared := diff(3, "phase", `"explore"`)
	q.Enqueue(shared)
	if q.Len() != 1 {
		t.Fatalf("expected a single pending diff, got %d", q.Len())
	}

	close(conn.gate)
	frames := waitSent(t, conn, 2)
	st := decodeState(t, frames[1])
	if st.Seq != 3 || st.Full {
		t.Fatalf("expected diff seq 3, got %+v", st)
	}
	if string(st.Changes["phase"]) != `"explore"` || string(st.Changes["player"]) != `{"s":1}` {
		t.Fatalf("unexpected merged changes %v", st.Changes)
	}
	if len(shared.Changes) != 1 {
		t.Fatal("the enqueued frame must not be modified")
	}
	mu.Lock()
	defer mu.Unlock()
	if coalesced != 2 {
		t.Fatalf("expected 2 coalesced diffs, got %d", coalesced)
	}
}

func TestQueue_FullSnapshotDropsDiffs(t *testing.T) {
	conn := newMockConnection()
	conn.gate = make(chan struct{})
	q := NewQueue(conn, QueueOptions{})
	defer q.Close()

	q.Enqueue(protocol.NewEvent("FIRST", nil))
	waitStarted(t, conn)

	q.Enqueue(diff(1, "phase", `"prep"`))
	q.Enqueue(protocol.NewEvent("KEEP", nil))
	q.Enqueue(protocol.NewSnapshot(2, json.RawMessage(`{"phase":"prep"}`)))
	q.Enqueue(diff(3, "phase", `"explore"`))
	if q.Len() != 3 {
		t.Fatalf("expected event, snapshot and diff pending, got %d", q.Len())
	}

	close(conn.gate)
	frames := waitSent(t, conn, 4)
	if !strings.Contains(string(frames[1]), `"KEEP"`) {
		t.Fatalf("expected the event second, got %s", frames[1])
	}
	if st := decodeState(t, frames[2]); !st.Full || st.Seq != 2 {
		t.Fatalf("expected snapshot seq 2, got %s", frames[2])
	}
	if st := decodeState(t, frames[3]); st.Full || st.Seq != 3 {
		t.Fatalf("expected diff seq 3, got %s", frames[3])
	}
}

func TestQueue_SendImmediate(t *testing.T) {
	conn := newMockConnection()
	q := NewQueue(conn, QueueOptions{Interval: 200 * time.Millisecond})
	defer q.Close()

	q.Enqueue(protocol.NewEvent("A", nil))
	waitSent(t, conn, 1)
	q.Enqueue(protocol.NewEvent("B", nil))
	q.SendImmediate(protocol.NewPong(1))
	frames := waitSent(t, conn, 3)

	if !strings.Contains(string(frames[1]), `"PONG"`) {
		t.Fatalf("expected PONG to jump the queue, got %s", frames[1])
	}
	at := conn.times()
	if gap := at[1].Sub(at[0]); gap >= 200*time.Millisecond {
		t.Fatalf("immediate send waited %v", gap)
	}
	if gap := at[2].Sub(at[1]); gap < 200*time.Millisecond {
		t.Fatalf("the send after an immediate one must still wait, got %v", gap)
	}
}

func TestQueue_OversizeFails(t *testing.T) {
	conn := newMockConnection()
	failed := make(chan error, 1)
	q := NewQueue(conn, QueueOptions{OnFailure: func(err error) { failed <- err }})

	q.Enqueue(protocol.NewEvent("BIG", strings.Repeat("x", MaxMessageSize)))
	select {
	case err := <-failed:
		if !errors.Is(err, ErrMessageTooLarge) {
			t.Fatalf("expected ErrMessageTooLarge, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("failure callback not called")
	}
	if len(conn.frames()) != 0 || len(conn.times()) != 0 {
		t.Fatal("an oversize frame must never reach the socket")
	}
	if err := q.Enqueue(protocol.NewEvent("AFTER", nil)); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected the failed queue to be closed, got %v", err)
	}
}

func TestQueue_SendErrorFails(t *testing.T) {
	conn := newMockConnection()
	conn.sendErr = errors.New("broken pipe")
	failed := make(chan error, 1)
	q := NewQueue(conn, QueueOptions{OnFailure: func(err error) { failed <- err }})

	q.Enqueue(protocol.NewEvent("A", nil))
	select {
	case err := <-failed:
		if err == nil || !strings.Contains(err.Error(), "broken pipe") {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("failure callback not called")
	}
}

func TestQueue_CloseDropsPending(t *testing.T) {
	conn := newMockConnection()
	conn.gate = make(chan struct{})
	q := NewQueue(conn, QueueOptions{})

	q.Enqueue(protocol.NewEvent("A", nil))
	waitStarted(t, conn)
	q.Enqueue(protocol.NewEvent("B", nil))
	q.Close()
	q.Close()
	close(conn.gate)

	time.Sleep(100 * time.Millisecond)
	if n := len(conn.frames()); n != 1 {
		t.Fatalf("expected only the in-flight frame, got %d", n)
	}
	if q.Len() != 0 {
		t.Fatal("Close should discard pending frames")
	}
	if err := q.Enqueue(protocol.NewEvent("C", nil)); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
