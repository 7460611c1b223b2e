// state/phases.go
package state

import "time"

// Phase 房间阶段
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhasePrep      Phase = "prep"
	PhaseExplore   Phase = "explore"
	PhaseResult    Phase = "result"
)

var phaseOrder = map[Phase]int{
	PhaseLobby:     0,
	PhaseCountdown: 1,
	PhasePrep:      2,
	PhaseExplore:   3,
	PhaseResult:    4,
}

func (p Phase) order() int {
	return phaseOrder[p]
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Timed reports whether the phase runs against a deadline.
func (p Phase) Timed() bool {
	return p == PhaseCountdown || p == PhasePrep || p == PhaseExplore
}

// Pausable reports whether a disconnect in p pauses the room.
func (p Phase) Pausable() bool {
	return p != PhaseLobby && p != PhaseResult
}

// Next returns the phase an expired deadline leads to.
func (p Phase) Next() Phase {
	switch p {
	case PhaseCountdown:
		return PhasePrep
	case PhasePrep:
		return PhaseExplore
	case PhaseExplore:
		return PhaseResult
	}
	return p
}

// 固定时长
const (
	CountdownDuration      = 3 * time.Second
	PrepDuration           = 60 * time.Second
	DefaultExploreDuration = 5 * time.Minute

	PointWindowEnd     = 40 * time.Second
	TrapWindowStart    = 40 * time.Second
	TrapWindowEnd      = 45 * time.Second
	PredictionWindow   = 15 * time.Second
	predictionWindowAt = PrepDuration - PredictionWindow
)

// Durations holds the length of each timed phase.
type Durations struct {
	Countdown time.Duration `json:"countdown"`
	Prep      time.Duration `json:"prep"`
	Explore   time.Duration `json:"explore"`
}

// DefaultDurations returns the fixed countdown and prep lengths with the
// given explore length (DefaultExploreDuration when zero).
func DefaultDurations(explore time.Duration) Durations {
	if explore <= 0 {
		explore = DefaultExploreDuration
	}
	return Durations{Countdown: CountdownDuration, Prep: PrepDuration, Explore: explore}
}

// For returns the length of phase p, or zero for untimed phases.
func (d Durations) For(p Phase) time.Duration {
	switch p {
	case PhaseCountdown:
		return d.Countdown
	case PhasePrep:
		return d.Prep
	case PhaseExplore:
		return d.Explore
	}
	return 0
}

// WindowState says where an elapsed prep time sits relative to a window.
type WindowState int

const (
	WindowBefore WindowState = iota
	WindowOpen
	WindowAfter
)

// PrepWindows is the set of owner action windows at one moment of prep.
type PrepWindows struct {
	Points      WindowState
	Traps       WindowState
	Predictions WindowState
}

// PrepWindow classifies elapsed prep time. Windows are half-open:
// points [0,40s), traps [40s,45s), predictions [45s,60s).
func PrepWindow(elapsed time.Duration) PrepWindows {
	return PrepWindows{
		Points:      window(elapsed, 0, PointWindowEnd),
		Traps:       window(elapsed, TrapWindowStart, TrapWindowEnd),
		Predictions: window(elapsed, predictionWindowAt, PrepDuration),
	}
}

func window(elapsed, start, end time.Duration) WindowState {
	switch {
	case elapsed < start:
		return WindowBefore
	case elapsed >= end:
		return WindowAfter
	}
	return WindowOpen
}
