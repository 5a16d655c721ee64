package event

import (
	"time"

	"github.com/viperadnan-git/qrunner/internal/core/job"
)

type EventType string

const (
	EventJobQueued    EventType = "job.queued"
	EventJobPreparing EventType = "job.preparing"
	EventJobPrepared  EventType = "job.prepared"
	EventJobExecuting EventType = "job.executing"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
)

// JobStatusEvents lists every event type a job passes through.
var JobStatusEvents = []EventType{
	EventJobQueued,
	EventJobPreparing,
	EventJobPrepared,
	EventJobExecuting,
	EventJobCompleted,
	EventJobFailed,
}

var statusEvents = map[job.Status]EventType{
	job.StatusQueued:    EventJobQueued,
	job.StatusPreparing: EventJobPreparing,
	job.StatusPrepared:  EventJobPrepared,
	job.StatusExecuting: EventJobExecuting,
	job.StatusDone:      EventJobCompleted,
	job.StatusFailed:    EventJobFailed,
}

// TypeFor returns the event type that carries a message of the given status.
func TypeFor(s job.Status) EventType {
	return statusEvents[s]
}

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// JobEvent is the payload of every job.* event. Image is the rendered
// diagram held for the job, if any; it rides along with the terminal event
// so subscribers can keep it without it being re-sent to clients.
type JobEvent struct {
	JobID   string
	Params  job.Params
	Message job.Message
	Image   string
}

// NewJobEvent builds the event for one status transition.
func NewJobEvent(jobID string, params job.Params, msg job.Message, image string) Event {
	return Event{
		Type: TypeFor(msg.Status),
		Payload: JobEvent{
			JobID:   jobID,
			Params:  params,
			Message: msg,
			Image:   image,
		},
	}
}
