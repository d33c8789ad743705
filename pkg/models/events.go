package models

import "time"

type EventType string

const (
	EventTypeSnapshotCollected    EventType = "snapshot_collected"
	EventTypeSnapshotEvaluated    EventType = "snapshot_evaluated"
	EventTypeScaleUpTriggered     EventType = "scale_up_triggered"
	EventTypeDeploymentSubmitted  EventType = "deployment_submitted"
	EventTypeDeploymentPolled     EventType = "deployment_polled"
	EventTypeDeploymentSucceeded  EventType = "deployment_succeeded"
	EventTypeStabilizationStarted EventType = "stabilization_started"
	EventTypeMonitoringResumed    EventType = "monitoring_resumed"
	EventTypeAgentHalted          EventType = "agent_halted"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal agent event
type Event struct {
	ID            string        `json:"id"`
	Type          EventType     `json:"type"`
	Severity      EventSeverity `json:"severity"`
	ResourceGroup string        `json:"resource_group,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Message       string        `json:"message"`
	Data          interface{}   `json:"data,omitempty"`
	TraceID       string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, resourceGroup, message string) *Event {
	return &Event{
		ID:            NewUUID(),
		Type:          eventType,
		Severity:      SeverityInfo,
		ResourceGroup: resourceGroup,
		Timestamp:     time.Now(),
		Message:       message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
