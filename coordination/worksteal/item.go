package worksteal

import (
	"time"

	"github.com/google/uuid"
)

// WorkItem is one schedulable unit of work. The payload may carry a numeric
// "complexity" hint that only drives the simulated execution cost.
type WorkItem struct {
	ID          string         `json:"id"`
	Priority    int            `json:"priority"` // higher served first
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Stolen      bool           `json:"stolen"`
	Owner       string         `json:"owner"`
}

// NewWorkItem creates an item with a generated ID.
func NewWorkItem(priority int, payload map[string]any) *WorkItem {
	return &WorkItem{
		ID:        uuid.NewString(),
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// complexity extracts the payload complexity hint, defaulting to 1.
func (w *WorkItem) complexity() int {
	if w.Payload == nil {
		return 1
	}
	switch v := w.Payload["complexity"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return 1
}

func (w *WorkItem) clone() *WorkItem {
	c := *w
	return &c
}
