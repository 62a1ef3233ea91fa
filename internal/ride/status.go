package ride

// Status is the ride lifecycle state.
type Status string

const (
	StatusAccepted      Status = "ACCEPTED"
	StatusRejected      Status = "REJECTED"
	StatusScheduled     Status = "SCHEDULED"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusStopRequested Status = "STOP_REQUESTED"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
)

// Event is a lifecycle transition trigger.
type Event string

const (
	EventDriverConfirm Event = "DRIVER_CONFIRM"
	EventNoDriver      Event = "NO_DRIVER"
	EventStopRequest   Event = "STOP_REQUEST"
	EventStopConfirm   Event = "STOP_CONFIRM"
	EventComplete      Event = "COMPLETE"
	EventCancel        Event = "CANCEL"
)

// transitions is the complete legal transition table. Any (status, event)
// pair absent here fails with InvalidTransitionError; terminal states have no
// entries at all.
var transitions = map[Status]map[Event]Status{
	StatusAccepted: {
		EventDriverConfirm: StatusInProgress,
		EventNoDriver:      StatusRejected,
		EventCancel:        StatusCancelled,
	},
	StatusScheduled: {
		EventDriverConfirm: StatusInProgress,
		EventCancel:        StatusCancelled,
	},
	StatusInProgress: {
		EventStopRequest: StatusStopRequested,
		EventComplete:    StatusCompleted,
		EventCancel:      StatusCancelled,
	},
	StatusStopRequested: {
		EventStopConfirm: StatusCompleted,
		EventCancel:      StatusCancelled,
	},
}

// Next returns the target status for (from, ev), or false when the event is
// not legal from that state.
func Next(from Status, ev Event) (Status, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// Trackable reports whether a location cache entry must exist for a ride in
// this status.
func (s Status) Trackable() bool {
	return s == StatusInProgress || s == StatusStopRequested
}

// ActiveStatuses are the statuses that count toward the one-active-ride
// invariant for drivers and passengers.
var ActiveStatuses = []Status{StatusAccepted, StatusScheduled, StatusInProgress, StatusStopRequested}
