// Package agent runs the autoscaling control loop for one resource group:
// sample the swarm, decide, add a node, wait for it to settle, repeat.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/swarm-autoscaler/internal/events"
	"github.com/OldStager01/swarm-autoscaler/internal/metrics"
	"github.com/OldStager01/swarm-autoscaler/internal/scaler"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// Collector returns the raw cluster status document.
type Collector interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type Evaluator interface {
	Evaluate(snap *models.ClusterSnapshot, criteria models.Criteria, state models.ScalingState) (models.Evaluation, models.ScalingState, error)
}

type Deployer interface {
	Submit(ctx context.Context, resourceGroup string) (*models.DeploymentRecord, error)
	PollOnce(ctx context.Context, record *models.DeploymentRecord) (scaler.Outcome, error)
}

// Manifest must be available before the loop starts sampling.
type Manifest interface {
	Ensure(ctx context.Context) error
}

type Config struct {
	ResourceGroup          string
	Criteria               models.Criteria
	MonitoringInterval     time.Duration
	DeploymentPollInterval time.Duration
	StabilizationDelay     time.Duration
	CallTimeout            time.Duration
}

type Dependencies struct {
	Collector Collector
	Evaluator Evaluator
	Deployer  Deployer
	Manifest  Manifest
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type Agent struct {
	config    Config
	collector Collector
	evaluator Evaluator
	deployer  Deployer
	manifest  Manifest
	publisher *events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time

	// Owned by the loop goroutine.
	phase      models.AgentPhase
	state      models.ScalingState
	deployment *models.DeploymentRecord
	traceID    string

	mu     sync.RWMutex
	status models.AgentStatus
}

// New validates cfg and builds an agent. Invalid criteria or a missing
// collaborator is a configuration error.
func New(cfg Config, deps Dependencies) (*Agent, error) {
	if cfg.ResourceGroup == "" {
		return nil, fmt.Errorf("%w: resource group is required", models.ErrConfiguration)
	}
	if !cfg.Criteria.IsValid() {
		return nil, fmt.Errorf("%w: invalid criteria %q", models.ErrConfiguration, cfg.Criteria)
	}
	if cfg.MonitoringInterval <= 0 || cfg.DeploymentPollInterval <= 0 || cfg.StabilizationDelay < 0 {
		return nil, fmt.Errorf("%w: intervals must be positive", models.ErrConfiguration)
	}
	if deps.Collector == nil || deps.Evaluator == nil || deps.Deployer == nil || deps.Manifest == nil {
		return nil, fmt.Errorf("%w: collector, evaluator, deployer and manifest are required", models.ErrConfiguration)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}

	now := deps.Now()
	return &Agent{
		config:    cfg,
		collector: deps.Collector,
		evaluator: deps.Evaluator,
		deployer:  deps.Deployer,
		manifest:  deps.Manifest,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		now:       deps.Now,
		phase:     models.PhaseStarting,
		status: models.AgentStatus{
			ResourceGroup:  cfg.ResourceGroup,
			Criteria:       cfg.Criteria,
			Phase:          models.PhaseStarting,
			PhaseEnteredAt: now,
			StartedAt:      now,
		},
	}, nil
}

// Status returns a copy of the loop's externally visible state.
func (a *Agent) Status() models.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.status
	if s.LastEvaluation != nil {
		e := *s.LastEvaluation
		s.LastEvaluation = &e
	}
	if s.Deployment != nil {
		d := *s.Deployment
		s.Deployment = &d
	}
	return s
}

func (a *Agent) updateStatus(fn func(s *models.AgentStatus)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.status)
}
