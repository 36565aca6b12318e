package intake

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// EventHandler processes one event. *Machine and the bot router satisfy it.
type EventHandler interface {
	Handle(ctx context.Context, ev Event) (State, error)
}

// Dispatcher runs events for different participants concurrently while
// keeping each participant's events in arrival order and never overlapping.
// Every participant with pending work owns one goroutine draining its
// mailbox; the goroutine exits once the mailbox is empty.
type Dispatcher struct {
	ctx     context.Context
	handler EventHandler
	log     *zerolog.Logger

	mu        sync.Mutex
	mailboxes map[int64][]Event
	closed    bool
	wg        sync.WaitGroup
}

func NewDispatcher(ctx context.Context, h EventHandler, log *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:       ctx,
		handler:   h,
		log:       log,
		mailboxes: make(map[int64][]Event),
	}
}

// Dispatch enqueues ev and returns immediately. It reports false once the
// dispatcher is closed.
func (d *Dispatcher) Dispatch(ev Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	queue, running := d.mailboxes[ev.ParticipantID]
	d.mailboxes[ev.ParticipantID] = append(queue, ev)
	if !running {
		d.wg.Add(1)
		go d.drain(ev.ParticipantID)
	}
	return true
}

func (d *Dispatcher) drain(participantID int64) {
	defer d.wg.Done()
	for {
		ev, ok := d.next(participantID)
		if !ok {
			return
		}
		if _, err := d.handler.Handle(d.ctx, ev); err != nil {
			d.log.Error().Err(err).
				Int64("participant_id", participantID).
				Str("event", ev.Kind.String()).
				Msg("failed to handle event")
		}
	}
}

// next pops the head of the mailbox, removing the mailbox when it is empty
// so the next Dispatch starts a fresh drainer.
func (d *Dispatcher) next(participantID int64) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	queue := d.mailboxes[participantID]
	if len(queue) == 0 {
		delete(d.mailboxes, participantID)
		return Event{}, false
	}
	ev := queue[0]
	queue[0] = Event{}
	d.mailboxes[participantID] = queue[1:]
	return ev, true
}

// Close stops accepting events and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until every queued event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
