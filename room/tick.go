// room/tick.go
package room

import (
	"github.com/wfunc/meiro/models"
	"github.com/wfunc/meiro/physics"
	"github.com/wfunc/meiro/protocol"
	"github.com/wfunc/meiro/rules"
	"github.com/wfunc/meiro/state"
)

// tick is the fixed 20 Hz step: heartbeat checks, then physics while
// exploring with a connected player.
func (r *Room) tick() {
	if r.disposed {
		return
	}
	now := r.now()
	r.opts.Monitor.IncTicks()
	r.checkHeartbeats(now)

	st := r.st
	if r.disposed || st.Phase != state.PhaseExplore || st.Pause.Paused || st.Maze == nil {
		return
	}
	player, ok := r.sessions.GetByRole(models.RolePlayer)
	if !ok || !player.Connected() {
		return
	}

	ms := now.UnixMilli()
	prev := rules.PlayerCell(st)
	in := physics.Input{Forward: st.Player.Input.Forward, Turn: st.Player.Input.Turn}
	body, moved := physics.Step(st.Player.Body, in, st.Maze.Grid, stepDt, rules.SpeedMultiplier(st, ms))
	if !moved {
		return
	}
	st.Player.Body = body
	st.UpdatedAt = ms

	out := r.rules.StepEffects(st, prev, ms)
	for _, e := range out.Effects {
		r.broadcaster.Broadcast(protocol.NewEvent(e.Event, e.Payload))
	}
	if out.TargetReached {
		r.finish(models.ReasonTargetReached, now)
		return
	}
	r.publish()
	if len(out.Effects) > 0 {
		r.checkpoint()
	}
}
