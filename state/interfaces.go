// state/interfaces.go
package state

// StateMachine is what the room needs from a phase machine.
type StateMachine interface {
	ChangeState(to Phase) error
	Current() Phase
	Restore(p Phase)
	AddTransition(from, to Phase, condition func() bool) error
	OnEnter(p Phase, fn func(from Phase))
	OnExit(p Phase, fn func(to Phase))
}

var _ StateMachine = (*Machine)(nil)
