package intake

import "context"

// handler runs the side effect of one transition and returns the next state.
type handler func(m *Machine, ctx context.Context, s *Session, ev Event) (State, error)

type transitionKey struct {
	from State
	on   EventKind
}

// newTable lists every transition of the intake flow. Any (state, event)
// pair missing here reprompts and leaves the state unchanged.
func newTable() map[transitionKey]handler {
	t := map[transitionKey]handler{
		{Idle, EventEntryRequested}:          (*Machine).enter,
		{Idle, EventRecheckRequested}:        (*Machine).enter,
		{AwaitingPhoto, EventPhoto}:          (*Machine).takePhoto,
		{AwaitingTeamName, EventText}:        (*Machine).takeTeamName,
		{AwaitingConfirmation, EventEdit}:    (*Machine).edit,
		{AwaitingConfirmation, EventConfirm}: (*Machine).confirm,
	}
	// /start abandons whatever draft exists and greets again.
	for _, from := range []State{Idle, AwaitingPhoto, AwaitingTeamName, AwaitingConfirmation} {
		t[transitionKey{from, EventStart}] = (*Machine).start
	}
	return t
}
