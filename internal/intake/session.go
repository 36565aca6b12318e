package intake

import "fmt"

type State int

const (
	Idle State = iota
	AwaitingPhoto
	AwaitingTeamName
	AwaitingConfirmation
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingPhoto:
		return "awaiting_photo"
	case AwaitingTeamName:
		return "awaiting_team_name"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal states end the session; it is discarded afterwards.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled
}

type EventKind int

const (
	EventStart EventKind = iota
	EventEntryRequested
	EventRecheckRequested
	EventPhoto
	EventText
	EventEdit
	EventConfirm
	// EventOther is any inbound content the flow has no use for.
	EventOther
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEntryRequested:
		return "entry_requested"
	case EventRecheckRequested:
		return "recheck_requested"
	case EventPhoto:
		return "photo"
	case EventText:
		return "text"
	case EventEdit:
		return "edit"
	case EventConfirm:
		return "confirm"
	default:
		return "other"
	}
}

// Callback payloads carried by inline buttons.
const (
	CallbackEntry   = "start_user"
	CallbackRecheck = "check_subs"
	CallbackConfirm = "confirm"
	CallbackEdit    = "edit"
)

// Event is one inbound interaction from a participant.
type Event struct {
	Kind          EventKind
	ParticipantID int64
	ChatID        int64
	DisplayName   string
	Text          string
	PhotoRef      string
}

// Session is the in-memory intake state of one participant.
type Session struct {
	ParticipantID int64
	State         State
	DraftPhoto    string
	DraftTeamName string
}
