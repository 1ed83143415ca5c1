package game

import "time"

// Effect is a declarative instruction returned by a state transition.
// Effects are data: only the game manager knows how to execute each kind,
// and game logic stays pure. The concrete types below form a closed union
// via the unexported marker method.
type Effect interface {
	isEffect()
}

// SendMessage asks the transport collaborator to deliver content to the
// session's channel. Executed synchronously, in returned order.
type SendMessage struct {
	Content string
}

// EndGame asks the manager to stop the session. Unlike every other
// effect it is executed after a short deferral window, so the caller can
// render the final pre-teardown state first.
type EndGame struct {
	Reason   string
	WinnerID string
}

// ScheduleTimeout (re)arms the channel's inactivity timer. When it fires
// the manager stops the game with an inactivity reason. Re-arming
// replaces any previous inactivity timer for the channel.
type ScheduleTimeout struct {
	Duration time.Duration
}

// ScheduleMove arms a one-shot timer after which the manager invokes the
// variant's SystemMove hook, persists its result and notifies the
// transport. At most one delayed move is pending per channel.
type ScheduleMove struct {
	Delay time.Duration
}

// UpdateParticipants persists a new participant list on the session row.
type UpdateParticipants struct {
	Participants []string
}

func (SendMessage) isEffect()        {}
func (EndGame) isEffect()            {}
func (ScheduleTimeout) isEffect()    {}
func (ScheduleMove) isEffect()       {}
func (UpdateParticipants) isEffect() {}
