// Package orchestrator assembles the agent and its collaborators from
// configuration and owns their lifecycle.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/OldStager01/swarm-autoscaler/internal/agent"
	"github.com/OldStager01/swarm-autoscaler/internal/arm"
	"github.com/OldStager01/swarm-autoscaler/internal/collector"
	"github.com/OldStager01/swarm-autoscaler/internal/decision"
	"github.com/OldStager01/swarm-autoscaler/internal/events"
	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/internal/manifest"
	"github.com/OldStager01/swarm-autoscaler/internal/metrics"
	"github.com/OldStager01/swarm-autoscaler/internal/scaler"
	"github.com/OldStager01/swarm-autoscaler/internal/simulator"
	"github.com/OldStager01/swarm-autoscaler/pkg/config"
	"github.com/OldStager01/swarm-autoscaler/pkg/database"
	"github.com/OldStager01/swarm-autoscaler/pkg/database/queries"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// backend is a cloud control plane that can also hand out the manifest.
type backend interface {
	scaler.Provisioner
	manifest.Source
	Close() error
}

type Orchestrator struct {
	config      *config.Config
	db          *database.DB
	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	collector   collector.Collector
	swarm       *simulator.Swarm
	provisioner backend
	agent       *agent.Agent
	metrics     *metrics.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	running bool
	mu      sync.RWMutex
}

// New wires the agent for cfg. db may be nil, in which case deployment
// history is only logged.
func New(cfg *config.Config, db *database.DB) (*Orchestrator, error) {
	return NewWithMetrics(cfg, db, metrics.Get())
}

func NewWithMetrics(cfg *config.Config, db *database.DB, m *metrics.Metrics) (*Orchestrator, error) {
	var recorder events.Recorder
	if db != nil {
		recorder = queries.NewDeploymentRepository(db.DB)
	}
	o, err := build(cfg, recorder, m)
	if err != nil {
		return nil, err
	}
	o.db = db
	return o, nil
}

// build assembles the agent around recorder, which may be nil.
func build(cfg *config.Config, recorder events.Recorder, m *metrics.Metrics) (*Orchestrator, error) {
	criteria, err := models.ParseCriteria(cfg.Agent.Criteria)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		config:  cfg,
		metrics: m,
		done:    make(chan struct{}),
	}

	if cfg.Collector.Type == "simulator" || cfg.Provisioner.Type == "simulator" {
		o.swarm = simulator.NewSwarm(simulator.SwarmConfig{
			InitialNodes:     cfg.Simulator.InitialNodes,
			CPUsPerNode:      cfg.Simulator.CPUsPerNode,
			MemoryGiBPerNode: cfg.Simulator.MemoryGiBPerNode,
			CPUDemand:        cfg.Simulator.CPUDemand,
			MemoryDemandGiB:  cfg.Simulator.MemoryDemandGiB,
		})
	}

	if err := o.buildCollector(); err != nil {
		return nil, err
	}
	if err := o.buildProvisioner(); err != nil {
		return nil, err
	}

	store := manifest.NewStore(manifest.Config{
		ResourceGroup: cfg.Agent.ResourceGroup,
		Directory:     cfg.Manifest.Directory,
		FileName:      cfg.Manifest.FileName,
		IndexToken:    cfg.Manifest.IndexToken,
		MaxFetchTime:  cfg.Manifest.MaxFetchTime,
	}, o.provisioner)

	o.eventBus = events.NewEventBus(cfg.Events.BufferSize)

	o.eventLogger = events.NewEventLogger(recorder, o.eventBus.SubscribeAll())

	o.agent, err = agent.New(agent.Config{
		ResourceGroup:          cfg.Agent.ResourceGroup,
		Criteria:               criteria,
		MonitoringInterval:     cfg.Agent.MonitoringInterval,
		DeploymentPollInterval: cfg.Agent.DeploymentPollInterval,
		StabilizationDelay:     cfg.Agent.StabilizationDelay,
		CallTimeout:            cfg.Agent.CallTimeout,
	}, agent.Dependencies{
		Collector: o.collector,
		Evaluator: decision.NewEngine(decision.Config{
			ResourceGroup:    cfg.Agent.ResourceGroup,
			TriggerThreshold: cfg.Agent.ConsecutiveTriggerThreshold,
			MinFreeMemoryGiB: cfg.Agent.MinFreeMemoryGiB,
		}),
		Deployer: scaler.New(o.provisioner, store, scaler.Config{
			MaxNodes:    cfg.Agent.MaxNodes,
			CallTimeout: cfg.Agent.CallTimeout,
		}),
		Manifest:  store,
		Publisher: events.NewPublisher(o.eventBus),
		Metrics:   m,
	})
	if err != nil {
		o.eventBus.Close()
		return nil, err
	}

	return o, nil
}

func (o *Orchestrator) buildCollector() error {
	switch o.config.Collector.Type {
	case "http":
		o.collector = collector.NewHTTPCollector(collector.HTTPCollectorConfig{
			Endpoint: o.config.Collector.Endpoint,
			Timeout:  o.config.Collector.Timeout,
		})
	case "simulator":
		o.collector = collector.NewMockCollector(o.swarm)
	default:
		return fmt.Errorf("%w: unknown collector type %q", models.ErrConfiguration, o.config.Collector.Type)
	}
	return nil
}

func (o *Orchestrator) buildProvisioner() error {
	p := o.config.Provisioner
	switch p.Type {
	case "arm":
		client, err := arm.New(arm.Config{
			SubscriptionID:   p.SubscriptionID,
			TenantID:         p.TenantID,
			ClientID:         p.ClientID,
			ClientSecret:     p.ClientSecret,
			BaseURL:          p.BaseURL,
			AuthorityURL:     p.AuthorityURL,
			APIVersion:       p.APIVersion,
			ResourceType:     p.ResourceType,
			SourceDeployment: o.config.Manifest.SourceDeployment,
			Timeout:          p.Timeout,
		})
		if err != nil {
			return err
		}
		o.provisioner = client
	case "simulator":
		o.provisioner = scaler.NewSimulatedProvisioner(o.swarm, scaler.SimulatorConfig{
			ProvisionTime: p.ProvisionTime,
		})
	default:
		return fmt.Errorf("%w: unknown provisioner type %q", models.ErrConfiguration, p.Type)
	}
	return nil
}

// Start launches the event logger and the control loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	o.ctx, o.cancel = context.WithCancel(ctx)
	o.running = true
	o.eventLogger.Start()

	go o.run()

	logger.WithResourceGroup(o.config.Agent.ResourceGroup).Info("Orchestrator started")
	return nil
}

func (o *Orchestrator) run() {
	err := o.agent.Run(o.ctx)

	o.mu.Lock()
	o.err = err
	o.running = false
	o.mu.Unlock()

	close(o.done)
}

// Done is closed when the control loop has returned, either halted or
// stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Err returns the error that halted the agent, or nil.
func (o *Orchestrator) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

// Stop cancels the control loop and returns once every published event,
// including the halt, has been logged and persisted.
func (o *Orchestrator) Stop() {
	logger.Info("Orchestrator stopping")

	o.mu.Lock()
	cancel := o.cancel
	started := o.ctx != nil
	o.mu.Unlock()

	if started {
		cancel()
		<-o.done
		o.eventBus.Close()
		<-o.eventLogger.Done()
	} else {
		o.eventBus.Close()
	}

	if err := o.collector.Close(); err != nil {
		logger.Warnf("Failed to close collector: %v", err)
	}
	if err := o.provisioner.Close(); err != nil {
		logger.Warnf("Failed to close provisioner: %v", err)
	}

	logger.Info("Orchestrator stopped")
}

func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

func (o *Orchestrator) Status() models.AgentStatus {
	return o.agent.Status()
}

func (o *Orchestrator) Collector() collector.Collector {
	return o.collector
}

func (o *Orchestrator) Metrics() *metrics.Metrics {
	return o.metrics
}

// Swarm returns the simulated swarm, or nil when running against a real one.
func (o *Orchestrator) Swarm() *simulator.Swarm {
	return o.swarm
}

func (o *Orchestrator) SubscribeEvents(eventType models.EventType) <-chan *models.Event {
	return o.eventBus.Subscribe(eventType)
}

func (o *Orchestrator) SubscribeAllEvents() <-chan *models.Event {
	return o.eventBus.SubscribeAll()
}
