package job

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusPreparing Status = "preparing"
	StatusPrepared  Status = "prepared"
	StatusExecuting Status = "executing"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further message follows this status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Message is one status transition as sent to subscribers.
type Message struct {
	Status     Status
	Image      string
	ImageError string
	Result     Counts
	Reason     string
}

func Queued() Message    { return Message{Status: StatusQueued} }
func Preparing() Message { return Message{Status: StatusPreparing} }
func Executing() Message { return Message{Status: StatusExecuting} }

// Prepared carries either the rendered image or the reason rendering failed.
func Prepared(image string, renderErr error) Message {
	m := Message{Status: StatusPrepared, Image: image}
	if renderErr != nil {
		m.Image = ""
		m.ImageError = renderErr.Error()
	}
	return m
}

func Done(result Counts) Message {
	return Message{Status: StatusDone, Result: result.Clone()}
}

func Failed(reason string) Message {
	return Message{Status: StatusFailed, Reason: reason}
}

// MarshalJSON emits only the fields that belong to the status. A done
// message always carries a result object, even when empty.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"status": m.Status}
	switch m.Status {
	case StatusPrepared:
		if m.Image != "" {
			out["image"] = m.Image
		}
		if m.ImageError != "" {
			out["image_error"] = m.ImageError
		}
	case StatusDone:
		result := m.Result
		if result == nil {
			result = Counts{}
		}
		out["result"] = result
	case StatusFailed:
		out["reason"] = m.Reason
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status     Status `json:"status"`
		Image      string `json:"image"`
		ImageError string `json:"image_error"`
		Result     Counts `json:"result"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Status == "" {
		return fmt.Errorf("message without status")
	}
	*m = Message{
		Status:     raw.Status,
		Image:      raw.Image,
		ImageError: raw.ImageError,
		Result:     raw.Result,
		Reason:     raw.Reason,
	}
	return nil
}
