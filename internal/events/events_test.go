package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

func receive(t *testing.T, ch <-chan *models.Event) *models.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	halted := bus.Subscribe(models.EventTypeAgentHalted)
	pub := NewPublisher(bus)

	pub.MonitoringResumed("rg")
	pub.AgentHalted("rg", models.PhaseMonitoring, fmt.Errorf("%w: bad", models.ErrParse))

	e := receive(t, halted)
	assert.Equal(t, models.EventTypeAgentHalted, e.Type)
	assert.Equal(t, models.SeverityCritical, e.Severity)

	data, ok := e.Data.(HaltData)
	require.True(t, ok)
	assert.Equal(t, "parse", data.ErrorKind)
	assert.Equal(t, models.PhaseMonitoring, data.Phase)
	assert.Empty(t, halted)
}

func TestEventBus_SubscribeAllAndClose(t *testing.T) {
	bus := NewEventBus(10)
	all := bus.SubscribeAll()
	single := bus.Subscribe(models.EventTypeMonitoringResumed)

	NewPublisher(bus).WithTraceID("trace-1").MonitoringResumed("rg")

	e := receive(t, all)
	assert.Equal(t, "trace-1", e.TraceID)
	receive(t, single)

	bus.Close()
	bus.Close()

	_, ok := <-all
	assert.False(t, ok)
	_, ok = <-single
	assert.False(t, ok)

	// Publishing after close is a no-op.
	NewPublisher(bus).MonitoringResumed("rg")
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()
	ch := bus.Subscribe(models.EventTypeMonitoringResumed)

	pub := NewPublisher(bus)
	pub.MonitoringResumed("rg")
	pub.MonitoringResumed("rg")

	assert.Len(t, ch, 1)
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestPublisher_DeploymentEventsCopyRecord(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(models.EventTypeDeploymentPolled)

	record := models.NewDeploymentRecord("rg", 2, time.Now())
	record.Transition(models.ProvisioningRunning, time.Now())
	NewPublisher(bus).DeploymentPolled(record)

	record.Transition(models.ProvisioningSucceeded, time.Now())

	e := receive(t, ch)
	published, ok := e.Data.(*models.DeploymentRecord)
	require.True(t, ok)
	assert.Equal(t, models.ProvisioningRunning, published.State)
	assert.Nil(t, published.CompletedAt)
}

func TestPublisher_NilIsSafe(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() { p.MonitoringResumed("rg") })
}

type fakeRecorder struct {
	mu      sync.Mutex
	upserts []models.DeploymentRecord
	halts   []string
	err     error
}

func (f *fakeRecorder) Upsert(ctx context.Context, d *models.DeploymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, *d)
	return f.err
}

func (f *fakeRecorder) RecordHalt(ctx context.Context, rg, phase, kind, message string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halts = append(f.halts, kind)
	return f.err
}

func TestEventLogger_PersistsDeploymentsAndHalts(t *testing.T) {
	bus := NewEventBus(10)
	recorder := &fakeRecorder{}
	l := NewEventLogger(recorder, bus.SubscribeAll())
	l.Start()

	pub := NewPublisher(bus)
	record := models.NewDeploymentRecord("rg", 1, time.Now())
	pub.DeploymentSubmitted(record)
	record.Transition(models.ProvisioningSucceeded, time.Now())
	pub.DeploymentSucceeded(record)
	pub.MonitoringResumed("rg")
	pub.AgentHalted("rg", models.PhaseDeploying, fmt.Errorf("%w: x", models.ErrDeploymentFailed))

	bus.Close()
	<-l.Done()

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.upserts, 2)
	assert.Equal(t, models.ProvisioningSubmitted, recorder.upserts[0].State)
	assert.Equal(t, models.ProvisioningSucceeded, recorder.upserts[1].State)
	assert.Equal(t, []string{"deployment_failed"}, recorder.halts)
}

func TestEventLogger_RecorderErrorsAreLogged(t *testing.T) {
	bus := NewEventBus(10)
	recorder := &fakeRecorder{err: errors.New("db down")}
	l := NewEventLogger(recorder, bus.SubscribeAll())
	l.Start()

	NewPublisher(bus).DeploymentSubmitted(models.NewDeploymentRecord("rg", 1, time.Now()))
	bus.Close()
	<-l.Done()

	assert.Len(t, recorder.upserts, 1)
}

func TestEventLogger_WithoutRecorder(t *testing.T) {
	bus := NewEventBus(10)
	l := NewEventLogger(nil, bus.SubscribeAll())
	l.Start()

	NewPublisher(bus).DeploymentSubmitted(models.NewDeploymentRecord("rg", 1, time.Now()))
	l.Stop()
	bus.Close()
}

func TestEventLogger_LogToJSON(t *testing.T) {
	l := NewEventLogger(nil, nil)
	out := l.LogToJSON(models.NewEvent(models.EventTypeMonitoringResumed, "rg", "Monitoring resumed"))
	assert.Contains(t, out, `"type":"monitoring_resumed"`)
	assert.Contains(t, out, `"resource_group":"rg"`)
}
