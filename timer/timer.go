// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler runs a callback at an absolute time. Scheduling a key that is
// already pending replaces it.
type Scheduler interface {
	Schedule(key string, at time.Time, fn func())
	Cancel(key string)
}

type TimerTask struct {
	Key      string
	Execute  time.Time
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// DefaultResolution is how often the queue is polled.
const DefaultResolution = 10 * time.Millisecond

type TimerManager struct {
	queue  TimerQueue
	keys   map[string]*TimerTask
	mutex  sync.Mutex
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
	ticker time.Duration
}

func NewTimerManager() *TimerManager {
	return NewTimerManagerWithClock(time.Now, DefaultResolution)
}

// NewTimerManagerWithClock lets tests drive the clock and polling rate.
func NewTimerManagerWithClock(now func() time.Time, resolution time.Duration) *TimerManager {
	manager := &TimerManager{
		queue:  make(TimerQueue, 0),
		keys:   make(map[string]*TimerTask),
		now:    now,
		stop:   make(chan struct{}),
		ticker: resolution,
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

func (m *TimerManager) Schedule(key string, at time.Time, fn func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if old, ok := m.keys[key]; ok {
		heap.Remove(&m.queue, old.index)
	}
	task := &TimerTask{Key: key, Execute: at, Callback: fn}
	m.keys[key] = task
	heap.Push(&m.queue, task)
}

func (m *TimerManager) Cancel(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if task, ok := m.keys[key]; ok {
		heap.Remove(&m.queue, task.index)
		delete(m.keys, key)
	}
}

// Pending returns the number of scheduled tasks.
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop ends the polling goroutine. Pending tasks never run.
func (m *TimerManager) Stop() {
	m.once.Do(func() { close(m.stop) })
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.ticker)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for _, task := range m.due() {
				go task.Callback()
			}
		}
	}
}

// due pops every task whose time has come. Callbacks run outside the lock
// so they may schedule again.
func (m *TimerManager) due() []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	var ready []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		delete(m.keys, task.Key)
		ready = append(ready, task)
	}
	return ready
}
