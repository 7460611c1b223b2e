// room/phases.go
package room

import (
	"context"
	"time"

	"github.com/wfunc/meiro/logger"
	"github.com/wfunc/meiro/maze"
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/protocol"
	"github.com/wfunc/meiro/rules"
	"github.com/wfunc/meiro/state"
)

// touchActivity pushes back the idle expiry while the room waits in lobby
// or result.
func (r *Room) touchActivity(ms int64) {
	r.st.LastActivityAt = ms
	if r.st.Phase == state.PhaseLobby || r.st.Phase == state.PhaseResult {
		r.scheduleIdle()
	}
}

func (r *Room) scheduleIdle() {
	r.idleGen++
	gen := r.idleGen
	at := time.UnixMilli(r.st.LastActivityAt).Add(r.opts.LobbyTimeout)
	r.opts.Scheduler.Schedule(r.key("idle"), at, func() {
		r.post(func() { r.onIdle(gen) })
	})
}

func (r *Room) onIdle(gen uint64) {
	if gen != r.idleGen || r.disposed {
		return
	}
	if r.st.Phase != state.PhaseLobby && r.st.Phase != state.PhaseResult {
		return
	}
	if !r.idle(r.now().UnixMilli()) {
		r.scheduleIdle()
		return
	}
	r.expire("lobby timeout")
}

func (r *Room) schedulePhaseAlarm() {
	r.phaseGen++
	gen := r.phaseGen
	r.opts.Scheduler.Schedule(r.key("phase"), time.UnixMilli(r.st.PhaseEndsAt), func() {
		r.post(func() { r.onPhaseAlarm(gen) })
	})
}

func (r *Room) cancelPhaseAlarm() {
	r.phaseGen++
	r.opts.Scheduler.Cancel(r.key("phase"))
}

func (r *Room) onPhaseAlarm(gen uint64) {
	if gen != r.phaseGen || r.disposed || r.st.Pause.Paused || !r.st.Phase.Timed() {
		return
	}
	now := r.now()
	if now.UnixMilli() < r.st.PhaseEndsAt {
		r.schedulePhaseAlarm()
		return
	}
	next := r.st.Phase.Next()
	if next == state.PhaseResult {
		r.finish(models.ReasonTimeUp, now)
		return
	}
	r.enterPhase(next, now)
}

func (r *Room) scheduleDisconnectAlarm() {
	r.pauseGen++
	gen := r.pauseGen
	r.opts.Scheduler.Schedule(r.key("disconnect"), time.UnixMilli(r.st.Pause.ExpiresAt), func() {
		r.post(func() { r.onDisconnectTimeout(gen) })
	})
}

// onDisconnectTimeout ends the round when the dropped role did not come
// back in time.
func (r *Room) onDisconnectTimeout(gen uint64) {
	if gen != r.pauseGen || r.disposed || !r.st.Pause.Paused {
		return
	}
	now := r.now()
	if now.UnixMilli() < r.st.Pause.ExpiresAt {
		r.scheduleDisconnectAlarm()
		return
	}
	logger.Log.Infow("disconnect timeout", "room", r.id, "role", r.st.Pause.Role, "phase", r.st.Pause.Phase)
	r.finish(models.ReasonWalkoutTimeout, now)
}

// enterPhase moves the machine and the state to p, sets its deadline and
// announces it with a full snapshot.
func (r *Room) enterPhase(p state.Phase, now time.Time) error {
	from := r.st.Phase
	if err := r.machine.ChangeState(p); err != nil {
		logger.Log.Warnw("phase change refused", "room", r.id, "from", from, "to", p, "error", err)
		return err
	}

	ms := now.UnixMilli()
	r.st.Phase = p
	r.st.PhaseStartedAt = ms
	r.st.UpdatedAt = ms
	if d := r.st.Durations.For(p); p.Timed() && d > 0 {
		r.st.PhaseEndsAt = ms + d.Milliseconds()
		r.schedulePhaseAlarm()
	} else {
		r.st.PhaseEndsAt = 0
		r.cancelPhaseAlarm()
	}
	if p == state.PhaseLobby || p == state.PhaseResult {
		r.touchActivity(ms)
	} else {
		r.idleGen++
		r.opts.Scheduler.Cancel(r.key("idle"))
	}

	logger.Log.Infow("phase changed", "room", r.id, "from", from, "phase", p, "ends_at", r.st.PhaseEndsAt)
	r.broadcaster.Broadcast(protocol.NewEvent(protocol.EventPhase, map[string]any{
		"phase":     p,
		"from":      from,
		"startedAt": r.st.PhaseStartedAt,
		"endsAt":    r.st.PhaseEndsAt,
	}))
	r.broadcastFull()
	r.checkpoint()
	return nil
}

// start handles O_START: generates the maze and begins the countdown.
func (r *Room) start(msg protocol.OwnerStart, now time.Time) error {
	if r.st.Phase != state.PhaseLobby {
		return protocol.NewError(protocol.CodeInvalidPhase, "game already started")
	}
	if !r.playerConnected() {
		return protocol.NewError(protocol.CodeStartWaitingForPlayer, "waiting for a player")
	}

	seed := r.opts.Rand.Int63()
	m, err := maze.Generate(maze.Options{Size: msg.MazeSize, Seed: seed, MaxAttempts: r.opts.MazeAttempts})
	if err != nil {
		logger.Log.Errorw("maze generation failed", "room", r.id, "size", msg.MazeSize, "seed", seed, "error", err)
		return err
	}
	r.resetRound(m)
	return r.enterPhase(state.PhaseCountdown, now)
}

func (r *Room) resetRound(m *maze.Maze) {
	r.st.MazeSize = m.Size
	r.st.Maze = m
	r.st.Owner = rules.NewOwnerState(m.Size)
	r.st.Player = rules.NewPlayerState(m.Start)
	r.st.TargetScore = 0
	r.st.TargetLocked = false
	r.st.Result = nil
	r.st.Round++
	r.rules.Invalidate()
}

// lockTarget runs when prep ends.
func (r *Room) lockTarget() {
	grant, locked := rules.LockTarget(r.st)
	if locked {
		logger.Log.Infow("target locked", "room", r.id, "target", r.st.TargetScore, "grant", grant, "points", r.st.Owner.PointTotalValue)
	}
}

// finish ends the round with reason and moves to result.
func (r *Room) finish(reason string, now time.Time) {
	if r.st.Phase == state.PhaseResult {
		return
	}
	ms := now.UnixMilli()
	var elapsed int64
	switch {
	case r.st.Pause.Paused && r.st.Pause.Phase == state.PhaseExplore:
		elapsed = r.st.Durations.Explore.Milliseconds() - r.st.Pause.RemainingMs
	case !r.st.Pause.Paused && r.st.Phase == state.PhaseExplore:
		elapsed = ms - r.st.PhaseStartedAt
	}
	r.st.Result = &models.Result{
		Reason:    reason,
		Score:     r.st.Player.Score,
		Target:    r.st.TargetScore,
		At:        ms,
		ElapsedMs: max(elapsed, 0),
	}
	if reason == models.ReasonWalkoutTimeout {
		r.st.Result.WalkoutRole = r.st.Pause.Role
	}
	r.clearPause()

	r.broadcaster.Broadcast(protocol.NewEvent(protocol.EventResult, map[string]any{
		"reason": reason,
		"score":  r.st.Result.Score,
		"target": r.st.Result.Target,
	}))
	r.enterPhase(state.PhaseResult, now)
}

// recordResult stores the finished round without blocking the loop.
func (r *Room) recordResult() {
	if r.opts.Records == nil || r.st.Result == nil {
		return
	}
	rec, err := r.opts.Records.BuildRecord(r.st)
	if err != nil {
		logger.Log.Errorw("build game record failed", "room", r.id, "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.opts.Records.Save(ctx, rec); err != nil {
			logger.Log.Errorw("save game record failed", "room", rec.RoomID, "error", err)
		}
	}()
}

// rematch resets a finished room to lobby and flips a coin for the roles.
func (r *Room) rematch(now time.Time) error {
	if r.st.Phase != state.PhaseResult {
		return protocol.NewError(protocol.CodeRematchUnavailable, "rematch is only available after a result")
	}
	all := r.sessions.All()
	if len(all) < Capacity {
		return protocol.NewError(protocol.CodeRematchUnavailable, "both roles must be present")
	}
	for _, s := range all {
		if !s.Connected() {
			return protocol.NewError(protocol.CodeRematchUnavailable, "both roles must be connected")
		}
	}

	swapped := r.opts.Rand.Intn(2) == 1
	roles := make(map[string]models.Role, len(all))
	for _, s := range all {
		if swapped {
			s.Role = s.Role.Other()
		}
		r.st.Sessions[s.ID] = s.Info()
		roles[s.ID] = s.Role
	}

	r.st.Maze = nil
	r.st.Owner = models.OwnerState{
		PredictionMarks: make(map[string]models.Mark),
		Points:          make(map[string]models.Point),
	}
	r.st.Player = models.PlayerState{}
	r.st.TargetScore = 0
	r.st.TargetLocked = false
	r.st.Result = nil
	r.rules.Invalidate()

	if err := r.enterPhase(state.PhaseLobby, now); err != nil {
		return err
	}
	r.broadcaster.Broadcast(protocol.NewEvent(protocol.EventRematchReady, map[string]any{
		"swapped": swapped,
		"roles":   roles,
	}))
	return nil
}

func (r *Room) broadcastFull() {
	full, err := r.composer.Full(r.st)
	if err != nil {
		logger.Log.Errorw("compose snapshot failed", "room", r.id, "error", err)
		return
	}
	r.broadcaster.Broadcast(full)
}

// publish sends whatever changed since the last STATE frame.
func (r *Room) publish() {
	diff, err := r.composer.Diff(r.st)
	if err != nil {
		logger.Log.Errorw("compose diff failed", "room", r.id, "error", err)
		return
	}
	if diff != nil {
		r.broadcaster.Broadcast(diff)
	}
}
