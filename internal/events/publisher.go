package events

import (
	"fmt"
	"time"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

// HaltData is the payload of an agent_halted event.
type HaltData struct {
	Phase     models.AgentPhase `json:"phase"`
	ErrorKind string            `json:"error_kind"`
	Error     string            `json:"error"`
}

func (p *Publisher) SnapshotCollected(resourceGroup string, snap *models.ClusterSnapshot) {
	msg := fmt.Sprintf("Snapshot collected: %d nodes, CPU %.2f/%.2f",
		snap.NodeCount(), snap.UsedCPUShare, snap.TotalCPUCapacity)
	event := models.NewEvent(models.EventTypeSnapshotCollected, resourceGroup, msg).
		WithData(snap)
	p.publish(event)
}

func (p *Publisher) SnapshotEvaluated(resourceGroup string, eval models.Evaluation) {
	msg := fmt.Sprintf("Resources sufficient for %s", eval.Criteria)
	if eval.Insufficient {
		msg = fmt.Sprintf("Resources insufficient for %s (%d consecutive)", eval.Criteria, eval.Count)
	}
	event := models.NewEvent(models.EventTypeSnapshotEvaluated, resourceGroup, msg).
		WithData(eval)

	if eval.Insufficient {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) ScaleUpTriggered(resourceGroup string, eval models.Evaluation) {
	msg := fmt.Sprintf("Scale-up triggered after %d insufficient samples", eval.Count)
	event := models.NewEvent(models.EventTypeScaleUpTriggered, resourceGroup, msg).
		WithSeverity(models.SeverityWarning).
		WithData(eval)
	p.publish(event)
}

func (p *Publisher) DeploymentSubmitted(record *models.DeploymentRecord) {
	msg := fmt.Sprintf("Deployment %s submitted for node index %d", record.Name, record.NodeIndex)
	event := models.NewEvent(models.EventTypeDeploymentSubmitted, record.ResourceGroup, msg).
		WithData(copyRecord(record))
	p.publish(event)
}

func (p *Publisher) DeploymentPolled(record *models.DeploymentRecord) {
	msg := fmt.Sprintf("Deployment %s is %s", record.Name, record.State)
	event := models.NewEvent(models.EventTypeDeploymentPolled, record.ResourceGroup, msg).
		WithData(copyRecord(record))

	if record.State == models.ProvisioningFailed {
		event.WithSeverity(models.SeverityCritical)
	}

	p.publish(event)
}

func (p *Publisher) DeploymentSucceeded(record *models.DeploymentRecord) {
	msg := fmt.Sprintf("Deployment %s succeeded", record.Name)
	event := models.NewEvent(models.EventTypeDeploymentSucceeded, record.ResourceGroup, msg).
		WithData(copyRecord(record))
	p.publish(event)
}

func (p *Publisher) StabilizationStarted(resourceGroup string, delay time.Duration) {
	msg := fmt.Sprintf("Waiting %s for the new node to take load", delay)
	event := models.NewEvent(models.EventTypeStabilizationStarted, resourceGroup, msg).
		WithData(map[string]interface{}{
			"delay_seconds": delay.Seconds(),
		})
	p.publish(event)
}

func (p *Publisher) MonitoringResumed(resourceGroup string) {
	event := models.NewEvent(models.EventTypeMonitoringResumed, resourceGroup, "Monitoring resumed")
	p.publish(event)
}

func (p *Publisher) AgentHalted(resourceGroup string, phase models.AgentPhase, err error) {
	msg := "Agent halted: " + err.Error()
	event := models.NewEvent(models.EventTypeAgentHalted, resourceGroup, msg).
		WithSeverity(models.SeverityCritical).
		WithData(HaltData{
			Phase:     phase,
			ErrorKind: models.ErrorKind(err),
			Error:     err.Error(),
		})
	p.publish(event)
}

// Events are consumed asynchronously, so records are copied at publish time.
func copyRecord(record *models.DeploymentRecord) *models.DeploymentRecord {
	c := *record
	if record.CompletedAt != nil {
		t := *record.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
