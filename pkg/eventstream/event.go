package eventstream

import (
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMaintenanceStarted is emitted before a maintenance cycle checks
	// its circuit breaker.
	EventTypeMaintenanceStarted = "strata.maintenance.started"

	// EventTypeMaintenanceCompleted is emitted once a cycle has a terminal
	// status (ok, error or circuit_open). The payload is the cycle report.
	EventTypeMaintenanceCompleted = "strata.maintenance.completed"

	// EventTypeConsolidationOutcome is emitted for every consolidation attempt.
	EventTypeConsolidationOutcome = "strata.consolidation.outcome"

	// EventTypeDriftDetected is emitted when the drift monitor raises a new
	// set of alerts.
	EventTypeDriftDetected = "strata.drift.detected"
)

// Event is a transport-neutral envelope around a typed payload.
type Event struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Payload       any         `json:"payload"`
}

// EventSource identifies the process that emitted the event.
type EventSource struct {
	Service  string `json:"service"`
	Instance string `json:"instance,omitempty"`
}

// DefaultSource names this process: the strata service on the local host.
func DefaultSource() EventSource {
	host, _ := os.Hostname()
	return EventSource{Service: "strata", Instance: host}
}

// NewEvent wraps payload in a v1 envelope with a fresh id and timestamp.
func NewEvent(eventType string, source EventSource, payload any) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Payload:       payload,
	}
}

// MaintenanceStartedPayload is the payload of EventTypeMaintenanceStarted.
type MaintenanceStartedPayload struct {
	CycleID     string    `json:"cycle_id"`
	TriggeredBy string    `json:"triggered_by"`
	StartedAt   time.Time `json:"started_at"`
}

// ConsolidationOutcomePayload is the payload of EventTypeConsolidationOutcome.
type ConsolidationOutcomePayload struct {
	Key        string `json:"key"`
	ItemID     string `json:"item_id"`
	SourceTier string `json:"source_tier"`
	TargetTier string `json:"target_tier"`
	Status     string `json:"status"`
	NewID      string `json:"new_id,omitempty"`
	Error      string `json:"error,omitempty"`
}
