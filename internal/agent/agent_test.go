package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/swarm-autoscaler/internal/decision"
	"github.com/OldStager01/swarm-autoscaler/internal/events"
	"github.com/OldStager01/swarm-autoscaler/internal/metrics"
	"github.com/OldStager01/swarm-autoscaler/internal/scaler"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

const (
	cpuFull = `{"NCPU": 4, "DriverStatus": [["  └ Reserved CPUs", "2 / 2"], ["  └ Reserved CPUs", "2 / 2"]]}`
	cpuFree = `{"NCPU": 4, "DriverStatus": [["  └ Reserved CPUs", "2 / 2"], ["  └ Reserved CPUs", "1 / 2"]]}`
)

type call struct {
	name string
	at   time.Time
}

type callLog struct {
	mu    sync.Mutex
	calls []call
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call{name: name, at: time.Now()})
}

func (l *callLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	for i, c := range l.calls {
		out[i] = c.name
	}
	return out
}

func (l *callLog) count(name string) int {
	n := 0
	for _, c := range l.names() {
		if c == name {
			n++
		}
	}
	return n
}

func (l *callLog) snapshot() []call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]call(nil), l.calls...)
}

type fakeCollector struct {
	log      *callLog
	payloads []string
	errAt    map[int]error
	calls    int
	mu       sync.Mutex
}

func (f *fakeCollector) Fetch(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.log.add("fetch")
	i := f.calls
	f.calls++

	if err, ok := f.errAt[i]; ok {
		return nil, err
	}
	if i >= len(f.payloads) {
		i = len(f.payloads) - 1
	}
	return []byte(f.payloads[i]), nil
}

type fakeDeployer struct {
	log       *callLog
	submitErr error
	outcomes  []scaler.Outcome
	polls     int
	mu        sync.Mutex
}

func (f *fakeDeployer) Submit(ctx context.Context, rg string) (*models.DeploymentRecord, error) {
	f.log.add("submit")
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return models.NewDeploymentRecord(rg, 2, time.Now()), nil
}

func (f *fakeDeployer) PollOnce(ctx context.Context, record *models.DeploymentRecord) (scaler.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.log.add("poll")
	outcome := f.outcomes[f.polls]
	if f.polls < len(f.outcomes)-1 {
		f.polls++
	}

	switch outcome {
	case scaler.OutcomeSucceeded:
		record.Transition(models.ProvisioningSucceeded, time.Now())
		return outcome, nil
	case scaler.OutcomeFailed:
		record.Transition(models.ProvisioningFailed, time.Now())
		return outcome, fmt.Errorf("%w: %s", models.ErrDeploymentFailed, record.Name)
	default:
		record.Transition(models.ProvisioningRunning, time.Now())
		return outcome, nil
	}
}

type fakeManifest struct {
	err   error
	calls int
}

func (f *fakeManifest) Ensure(ctx context.Context) error {
	f.calls++
	return f.err
}

type harness struct {
	log       *callLog
	collector *fakeCollector
	deployer  *fakeDeployer
	manifest  *fakeManifest
	bus       *events.EventBus
	agent     *Agent
}

func newHarness(t *testing.T, payloads []string, outcomes []scaler.Outcome) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		log:       log,
		collector: &fakeCollector{log: log, payloads: payloads},
		deployer:  &fakeDeployer{log: log, outcomes: outcomes},
		manifest:  &fakeManifest{},
		bus:       events.NewEventBus(1000),
	}
	t.Cleanup(h.bus.Close)
	return h
}

func (h *harness) build(t *testing.T, stabilization time.Duration) *Agent {
	t.Helper()

	a, err := New(Config{
		ResourceGroup:          "rg-swarm",
		Criteria:               models.CriteriaCPU,
		MonitoringInterval:     2 * time.Millisecond,
		DeploymentPollInterval: 2 * time.Millisecond,
		StabilizationDelay:     stabilization,
		CallTimeout:            time.Second,
	}, Dependencies{
		Collector: h.collector,
		Evaluator: decision.NewEngine(decision.Config{ResourceGroup: "rg-swarm"}),
		Deployer:  h.deployer,
		Manifest:  h.manifest,
		Publisher: events.NewPublisher(h.bus),
		Metrics:   metrics.New(),
	})
	require.NoError(t, err)
	h.agent = a
	return a
}

func runAsync(a *Agent) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return cancel, done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not return")
		return nil
	}
}

func TestAgent_ScaleUpCycle(t *testing.T) {
	h := newHarness(t,
		[]string{cpuFull, cpuFull, cpuFree},
		[]scaler.Outcome{scaler.OutcomePending, scaler.OutcomePending, scaler.OutcomeSucceeded},
	)
	stabilized := h.bus.Subscribe(models.EventTypeStabilizationStarted)
	resumed := h.bus.Subscribe(models.EventTypeMonitoringResumed)

	a := h.build(t, 30*time.Millisecond)
	cancel, done := runAsync(a)

	require.Eventually(t, func() bool {
		return h.log.count("fetch") >= 5
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, waitResult(t, done))

	names := h.log.names()
	require.GreaterOrEqual(t, len(names), 8)
	assert.Equal(t, []string{"fetch", "fetch", "submit", "poll", "poll", "poll", "fetch"}, names[:7])
	assert.Equal(t, 1, h.log.count("submit"))
	assert.Equal(t, 3, h.log.count("poll"))

	assert.Len(t, stabilized, 1)
	assert.Len(t, resumed, 1)

	status := a.Status()
	assert.Equal(t, models.PhaseMonitoring, status.Phase)
	assert.Equal(t, 1, status.ScaleUps)
	assert.Nil(t, status.Deployment)
	assert.Equal(t, 0, status.Scaling.ConsecutiveInsufficient)
	assert.False(t, status.IsHalted())
}

func TestAgent_StabilizationDelayPrecedesSampling(t *testing.T) {
	h := newHarness(t,
		[]string{cpuFull, cpuFull, cpuFree},
		[]scaler.Outcome{scaler.OutcomeSucceeded},
	)
	a := h.build(t, 40*time.Millisecond)
	cancel, done := runAsync(a)

	require.Eventually(t, func() bool {
		return h.log.count("fetch") >= 3
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, waitResult(t, done))

	calls := h.log.snapshot()
	var lastPoll, nextFetch time.Time
	for i, c := range calls {
		if c.name == "poll" {
			lastPoll = c.at
			for _, after := range calls[i+1:] {
				if after.name == "fetch" {
					nextFetch = after.at
					break
				}
			}
		}
	}
	require.False(t, nextFetch.IsZero())
	assert.GreaterOrEqual(t, nextFetch.Sub(lastPoll), 40*time.Millisecond)
}

func TestAgent_HysteresisAbsorbsAlternatingSamples(t *testing.T) {
	h := newHarness(t,
		[]string{cpuFull, cpuFree, cpuFull, cpuFree, cpuFull, cpuFree, cpuFull, cpuFree},
		[]scaler.Outcome{scaler.OutcomeSucceeded},
	)
	a := h.build(t, time.Millisecond)
	cancel, done := runAsync(a)

	require.Eventually(t, func() bool {
		return h.log.count("fetch") >= 8
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, waitResult(t, done))

	assert.Equal(t, 0, h.log.count("submit"))
}

func TestAgent_Halts(t *testing.T) {
	tests := []struct {
		name      string
		payloads  []string
		errAt     map[int]error
		submitErr error
		outcomes  []scaler.Outcome
		wantErr   error
		wantKind  string
		wantPhase models.AgentPhase
	}{
		{
			name:      "parse error",
			payloads:  []string{`{"DriverStatus": []}`},
			wantErr:   models.ErrParse,
			wantKind:  "parse",
			wantPhase: models.PhaseMonitoring,
		},
		{
			name:      "collector transport error",
			payloads:  []string{cpuFree},
			errAt:     map[int]error{1: fmt.Errorf("%w: connection refused", models.ErrTransport)},
			wantErr:   models.ErrTransport,
			wantKind:  "transport",
			wantPhase: models.PhaseMonitoring,
		},
		{
			name:      "unclassified collector error",
			payloads:  []string{cpuFree},
			errAt:     map[int]error{0: errors.New("boom")},
			wantErr:   models.ErrTransport,
			wantKind:  "transport",
			wantPhase: models.PhaseMonitoring,
		},
		{
			name:      "capacity exceeded",
			payloads:  []string{cpuFull},
			submitErr: fmt.Errorf("%w: 26 nodes", models.ErrCapacityExceeded),
			wantErr:   models.ErrCapacityExceeded,
			wantKind:  "capacity_exceeded",
			wantPhase: models.PhaseDeploying,
		},
		{
			name:      "deployment failed",
			payloads:  []string{cpuFull},
			outcomes:  []scaler.Outcome{scaler.OutcomePending, scaler.OutcomeFailed},
			wantErr:   models.ErrDeploymentFailed,
			wantKind:  "deployment_failed",
			wantPhase: models.PhaseDeploying,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := tt.outcomes
			if outcomes == nil {
				outcomes = []scaler.Outcome{scaler.OutcomeSucceeded}
			}
			h := newHarness(t, tt.payloads, outcomes)
			h.collector.errAt = tt.errAt
			h.deployer.submitErr = tt.submitErr
			halted := h.bus.Subscribe(models.EventTypeAgentHalted)

			a := h.build(t, time.Millisecond)
			_, done := runAsync(a)

			err := waitResult(t, done)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			status := a.Status()
			assert.True(t, status.IsHalted())
			assert.Equal(t, tt.wantKind, status.LastErrorKind)

			event := <-halted
			data, ok := event.Data.(events.HaltData)
			require.True(t, ok)
			assert.Equal(t, tt.wantPhase, data.Phase)

			// Nothing runs after a halt.
			before := len(h.log.names())
			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, before, len(h.log.names()))
		})
	}
}

func TestAgent_ManifestFailureHaltsBeforeMonitoring(t *testing.T) {
	h := newHarness(t, []string{cpuFree}, []scaler.Outcome{scaler.OutcomeSucceeded})
	h.manifest.err = fmt.Errorf("%w: no deployments to copy", models.ErrConfiguration)

	a := h.build(t, time.Millisecond)
	err := a.Run(context.Background())

	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Equal(t, 1, h.manifest.calls)
	assert.Empty(t, h.log.names())
	assert.Equal(t, models.PhaseHalted, a.Status().Phase)
}

func TestAgent_CancelReturnsNil(t *testing.T) {
	h := newHarness(t, []string{cpuFree}, []scaler.Outcome{scaler.OutcomeSucceeded})
	a := h.build(t, time.Millisecond)

	cancel, done := runAsync(a)
	require.Eventually(t, func() bool { return h.log.count("fetch") >= 1 }, time.Second, time.Millisecond)
	cancel()

	assert.NoError(t, waitResult(t, done))
	assert.False(t, a.Status().IsHalted())
}

func TestNew_Validation(t *testing.T) {
	deps := Dependencies{
		Collector: &fakeCollector{},
		Evaluator: decision.NewEngine(decision.Config{}),
		Deployer:  &fakeDeployer{},
		Manifest:  &fakeManifest{},
	}
	valid := Config{
		ResourceGroup:          "rg",
		Criteria:               models.CriteriaMemory,
		MonitoringInterval:     time.Second,
		DeploymentPollInterval: time.Second,
		StabilizationDelay:     time.Second,
	}

	a, err := New(valid, deps)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseStarting, a.Status().Phase)
	assert.Equal(t, models.CriteriaMemory, a.Status().Criteria)

	bad := valid
	bad.Criteria = "disk"
	_, err = New(bad, deps)
	assert.ErrorIs(t, err, models.ErrConfiguration)

	bad = valid
	bad.ResourceGroup = ""
	_, err = New(bad, deps)
	assert.ErrorIs(t, err, models.ErrConfiguration)

	bad = valid
	bad.MonitoringInterval = 0
	_, err = New(bad, deps)
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = New(valid, Dependencies{})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
