package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/internal/scaler"
	"github.com/OldStager01/swarm-autoscaler/internal/snapshot"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// Run confirms the manifest, then drives the loop until an error halts it or
// ctx is cancelled. A halt returns the error that caused it; cancellation
// returns nil.
//
// One timer is armed at a time. The phase decides what its expiry means:
// sample while monitoring, poll while deploying, resume after stabilizing.
func (a *Agent) Run(ctx context.Context) error {
	log := logger.WithResourceGroup(a.config.ResourceGroup)

	if err := a.manifest.Ensure(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return a.halt(err)
	}

	a.enterMonitoring()
	log.Infof("Monitoring %s every %s", a.config.Criteria, a.config.MonitoringInterval)

	timer := time.NewTimer(a.config.MonitoringInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Agent stopped")
			return nil
		case <-timer.C:
			next, err := a.step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Info("Agent stopped")
					return nil
				}
				return a.halt(err)
			}
			timer.Reset(next)
		}
	}
}

// step handles one timer expiry and returns the delay for the next one.
func (a *Agent) step(ctx context.Context) (time.Duration, error) {
	switch a.phase {
	case models.PhaseMonitoring:
		return a.sample(ctx)
	case models.PhaseDeploying:
		return a.poll(ctx)
	case models.PhaseStabilizing:
		a.enterMonitoring()
		a.publisher.MonitoringResumed(a.config.ResourceGroup)
		return a.config.MonitoringInterval, nil
	default:
		return 0, fmt.Errorf("%w: timer fired in phase %s", models.ErrConfiguration, a.phase)
	}
}

func (a *Agent) sample(ctx context.Context) (time.Duration, error) {
	rg := a.config.ResourceGroup

	callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	started := time.Now()
	raw, err := a.collector.Fetch(callCtx)
	cancel()
	if err != nil {
		if models.ErrorKind(err) == "unknown" {
			err = fmt.Errorf("%w: fetch snapshot: %v", models.ErrTransport, err)
		}
		return 0, err
	}

	snap, err := snapshot.ParseAt(raw, a.now())
	if err != nil {
		return 0, err
	}
	a.metrics.ObserveSample(rg, snap, time.Since(started))
	a.publisher.SnapshotCollected(rg, snap)

	eval, next, err := a.evaluator.Evaluate(snap, a.config.Criteria, a.state)
	if err != nil {
		return 0, err
	}
	a.state = next

	a.metrics.ObserveEvaluation(rg, eval, next)
	a.publisher.SnapshotEvaluated(rg, eval)
	a.updateStatus(func(s *models.AgentStatus) {
		s.LastSnapshot = snap
		s.LastEvaluation = &eval
		s.Scaling = next
	})

	if !eval.Triggered {
		return a.config.MonitoringInterval, nil
	}

	return a.startDeployment(ctx, eval)
}

func (a *Agent) startDeployment(ctx context.Context, eval models.Evaluation) (time.Duration, error) {
	rg := a.config.ResourceGroup

	a.traceID = models.NewUUID()
	ctx = logger.WithTraceID(ctx, a.traceID)
	pub := a.publisher.WithTraceID(a.traceID)

	a.setPhase(models.PhaseDeploying)
	pub.ScaleUpTriggered(rg, eval)
	logger.FromContext(ctx).WithField("resource_group", rg).Infof("Scaling up resource group %s", rg)

	record, err := a.deployer.Submit(ctx, rg)
	if err != nil {
		return 0, err
	}

	a.deployment = record
	a.setDeployment(record)
	pub.DeploymentSubmitted(record)

	return a.config.DeploymentPollInterval, nil
}

func (a *Agent) poll(ctx context.Context) (time.Duration, error) {
	rg := a.config.ResourceGroup
	record := a.deployment
	ctx = logger.WithTraceID(ctx, a.traceID)
	pub := a.publisher.WithTraceID(a.traceID)

	outcome, err := a.deployer.PollOnce(ctx, record)
	if err != nil && outcome != scaler.OutcomeFailed {
		return 0, err
	}

	a.metrics.ObservePoll(rg, record.State)
	a.setDeployment(record)
	pub.DeploymentPolled(record)

	switch outcome {
	case scaler.OutcomeSucceeded:
		a.metrics.IncScaleUp(rg, "succeeded")
		a.updateStatus(func(s *models.AgentStatus) { s.ScaleUps++ })
		pub.DeploymentSucceeded(record)

		a.setPhase(models.PhaseStabilizing)
		pub.StabilizationStarted(rg, a.config.StabilizationDelay)
		logger.FromContext(ctx).WithField("resource_group", rg).Infof("Node index %d added, resuming monitoring in %s",
			record.NodeIndex, a.config.StabilizationDelay)
		return a.config.StabilizationDelay, nil

	case scaler.OutcomeFailed:
		a.metrics.IncScaleUp(rg, "failed")
		if err == nil {
			err = fmt.Errorf("%w: %s", models.ErrDeploymentFailed, record.Name)
		}
		return 0, err

	default:
		return a.config.DeploymentPollInterval, nil
	}
}

// enterMonitoring starts sampling with a fresh hysteresis counter.
func (a *Agent) enterMonitoring() {
	a.state = models.ScalingState{}
	a.deployment = nil
	a.traceID = ""
	a.setPhase(models.PhaseMonitoring)
	a.updateStatus(func(s *models.AgentStatus) {
		s.Scaling = a.state
		s.Deployment = nil
	})
}

func (a *Agent) setPhase(phase models.AgentPhase) {
	previous := a.phase
	now := a.now()

	a.phase = phase
	var spent time.Duration
	a.updateStatus(func(s *models.AgentStatus) {
		spent = now.Sub(s.PhaseEnteredAt)
		s.Phase = phase
		s.PhaseEnteredAt = now
	})
	a.metrics.SetPhase(a.config.ResourceGroup, previous, phase, spent)
}

func (a *Agent) setDeployment(record *models.DeploymentRecord) {
	c := *record
	a.updateStatus(func(s *models.AgentStatus) { s.Deployment = &c })
}

// halt stops the loop for good. Every timer is already stopped by the time
// the error reaches the owner.
func (a *Agent) halt(err error) error {
	phase := a.phase
	a.setPhase(models.PhaseHalted)
	a.updateStatus(func(s *models.AgentStatus) {
		s.LastError = err.Error()
		s.LastErrorKind = models.ErrorKind(err)
	})
	a.metrics.IncError(a.config.ResourceGroup, err)
	a.publisher.WithTraceID(a.traceID).AgentHalted(a.config.ResourceGroup, phase, err)

	logger.WithResourceGroup(a.config.ResourceGroup).WithFields(map[string]interface{}{
		"phase":      phase,
		"error_kind": models.ErrorKind(err),
	}).Errorf("Agent halted: %v", err)

	return err
}
