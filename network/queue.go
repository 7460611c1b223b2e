// network/queue.go
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/meiro/protocol"
)

var (
	ErrMessageTooLarge = errors.New("message exceeds size cap")
	ErrQueueClosed     = errors.New("queue closed")
)

// QueueOptions configures a Queue. Zero values take the protocol defaults.
type QueueOptions struct {
	Interval    time.Duration
	MaxSize     int
	OnFailure   func(err error)
	OnSent      func(bytes int)
	OnCoalesced func()
}

type queued struct {
	frame     protocol.Frame
	immediate bool
}

// Queue serialises outbound frames for one connection on its own writer
// goroutine. Normal frames are spaced at least Interval apart. A newer
// diff absorbs a pending older one, and a full snapshot drops pending
// diffs, so a slow client only ever receives the latest state.
type Queue struct {
	conn Connection
	opts QueueOptions

	mu          sync.Mutex
	items       []queued
	nextAllowed time.Time
	closed      bool

	wake chan struct{}
	done chan struct{}
}

func NewQueue(conn Connection, opts QueueOptions) *Queue {
	if opts.Interval <= 0 {
		opts.Interval = MinSendInterval
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = MaxMessageSize
	}
	q := &Queue{
		conn: conn,
		opts: opts,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue adds a frame behind whatever is pending.
func (q *Queue) Enqueue(f protocol.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	if st, ok := f.(*protocol.State); ok {
		if st.Full {
			q.dropStates()
		} else if q.mergeDiff(st) {
			return nil
		}
	}
	q.items = append(q.items, queued{frame: f})
	q.signal()
	return nil
}

// SendImmediate puts f at the head of the queue and lets it skip the send
// gap once. The gap after it still applies.
func (q *Queue) SendImmediate(f protocol.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if st, ok := f.(*protocol.State); ok && st.Full {
		q.dropStates()
	}
	q.items = append([]queued{{frame: f, immediate: true}}, q.items...)
	q.signal()
	return nil
}

// dropStates removes every pending STATE frame. Called with mu held.
func (q *Queue) dropStates() {
	kept := q.items[:0]
	for _, it := range q.items {
		if _, ok := it.frame.(*protocol.State); ok {
			q.coalesced()
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
}

// mergeDiff folds the pending diff into st and puts the result in its
// place. Frames may be shared between queues, so neither is modified.
func (q *Queue) mergeDiff(st *protocol.State) bool {
	for i, it := range q.items {
		old, ok := it.frame.(*protocol.State)
		if !ok || old.Full {
			continue
		}
		changes := make(map[string]json.RawMessage, len(old.Changes)+len(st.Changes))
		for k, v := range old.Changes {
			changes[k] = v
		}
		for k, v := range st.Changes {
			changes[k] = v
		}
		q.items[i] = queued{frame: protocol.NewDiff(st.Seq, changes), immediate: it.immediate}
		q.coalesced()
		return true
	}
	return false
}

func (q *Queue) coalesced() {
	if q.opts.OnCoalesced != nil {
		q.opts.OnCoalesced()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of pending frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the writer and discards pending frames.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

func (q *Queue) run() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
			case <-q.done:
				return
			}
			continue
		}
		head := q.items[0]
		if wait := time.Until(q.nextAllowed); !head.immediate && wait > 0 {
			q.mu.Unlock()
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-q.wake:
				timer.Stop()
			case <-q.done:
				return
			}
			continue
		}
		q.items = q.items[1:]
		q.mu.Unlock()

		err := q.write(head.frame)

		q.mu.Lock()
		q.nextAllowed = time.Now().Add(q.opts.Interval)
		q.mu.Unlock()

		if err != nil {
			q.Close()
			if q.opts.OnFailure != nil {
				q.opts.OnFailure(err)
			}
			return
		}
	}
}

// write encodes at send time so the size cap sees the final bytes.
func (q *Queue) write(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.FrameType(), err)
	}
	if len(data) > q.opts.MaxSize {
		return fmt.Errorf("%w: %s frame of %d bytes", ErrMessageTooLarge, f.FrameType(), len(data))
	}
	if err := q.conn.Send(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if q.opts.OnSent != nil {
		q.opts.OnSent(len(data))
	}
	return nil
}
