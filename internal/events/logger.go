package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// Recorder persists deployment history. It is satisfied by
// queries.DeploymentRepository.
type Recorder interface {
	Upsert(ctx context.Context, d *models.DeploymentRecord) error
	RecordHalt(ctx context.Context, resourceGroup, phase, kind, message string, at time.Time) error
}

type EventLogger struct {
	recorder  Recorder
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEventLogger logs every event from eventChan. recorder may be nil.
func NewEventLogger(recorder Recorder, eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		recorder:  recorder,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

func (l *EventLogger) Stop() {
	l.cancel()
	<-l.done
}

// Done is closed once the logger has stopped consuming events.
func (l *EventLogger) Done() <-chan struct{} {
	return l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type":     event.Type,
		"resource_group": event.ResourceGroup,
		"severity":       event.Severity,
		"trace_id":       event.TraceID,
	})

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Debug(event.Message)
	}

	if l.recorder == nil {
		return
	}

	switch event.Type {
	case models.EventTypeDeploymentSubmitted, models.EventTypeDeploymentPolled, models.EventTypeDeploymentSucceeded:
		l.persistDeployment(event)
	case models.EventTypeAgentHalted:
		l.persistHalt(event)
	}
}

func (l *EventLogger) persistDeployment(event *models.Event) {
	record, ok := event.Data.(*models.DeploymentRecord)
	if !ok {
		return
	}

	if err := l.recorder.Upsert(l.ctx, record); err != nil {
		logger.WithDeployment(record.ResourceGroup, record.Name).Errorf("Failed to persist deployment: %v", err)
	}
}

func (l *EventLogger) persistHalt(event *models.Event) {
	data, ok := event.Data.(HaltData)
	if !ok {
		return
	}

	err := l.recorder.RecordHalt(l.ctx, event.ResourceGroup, string(data.Phase), data.ErrorKind, data.Error, event.Timestamp)
	if err != nil {
		logger.WithResourceGroup(event.ResourceGroup).Errorf("Failed to persist agent halt: %v", err)
	}
}

func (l *EventLogger) LogToJSON(event *models.Event) string {
	data, _ := json.Marshal(event)
	return string(data)
}
