// Package metrics exposes the agent's instrumentation in the Prometheus
// format.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

var allPhases = []models.AgentPhase{
	models.PhaseStarting,
	models.PhaseMonitoring,
	models.PhaseDeploying,
	models.PhaseStabilizing,
	models.PhaseHalted,
}

type Metrics struct {
	registry *prometheus.Registry

	samplesTotal      *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	evaluationsTotal  *prometheus.CounterVec
	scaleUpsTotal     *prometheus.CounterVec
	deploymentPolls   *prometheus.CounterVec
	consecutiveCount  *prometheus.GaugeVec
	phaseGauge        *prometheus.GaugeVec
	cpuHeadroom       *prometheus.GaugeVec
	clusterNodes      *prometheus.GaugeVec
	collectionLatency *prometheus.HistogramVec
	phaseDuration     *prometheus.HistogramVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics, which also carry the Go runtime and
// process collectors.
func Get() *Metrics {
	once.Do(func() {
		instance = New()
		instance.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return instance
}

// New returns metrics bound to a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samplesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarm_autoscaler_samples_total",
				Help: "Snapshots fetched from the swarm manager",
			},
			[]string{"resource_group"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarm_autoscaler_errors_total",
				Help: "Errors that halted the agent, by error kind",
			},
			[]string{"resource_group", "kind"},
		),
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarm_autoscaler_evaluations_total",
				Help: "Scaling policy evaluations by result",
			},
			[]string{"resource_group", "criteria", "result"},
		),
		scaleUpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarm_autoscaler_scale_ups_total",
				Help: "Scale-up deployments by final result",
			},
			[]string{"resource_group", "result"},
		),
		deploymentPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarm_autoscaler_deployment_polls_total",
				Help: "Deployment status polls by reported state",
			},
			[]string{"resource_group", "state"},
		),
		consecutiveCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarm_autoscaler_consecutive_insufficient",
				Help: "Current value of the consecutive insufficient counter",
			},
			[]string{"resource_group"},
		),
		phaseGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarm_autoscaler_phase",
				Help: "Current control loop phase (1=active, 0=inactive)",
			},
			[]string{"resource_group", "phase"},
		),
		cpuHeadroom: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarm_autoscaler_cpu_headroom",
				Help: "Unreserved CPU share in the last snapshot",
			},
			[]string{"resource_group"},
		),
		clusterNodes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarm_autoscaler_cluster_nodes",
				Help: "Nodes reported in the last snapshot",
			},
			[]string{"resource_group"},
		),
		collectionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarm_autoscaler_collection_duration_seconds",
				Help:    "Duration of snapshot fetches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource_group"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarm_autoscaler_phase_duration_seconds",
				Help:    "Time spent in a phase before leaving it",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"resource_group", "phase"},
		),
	}

	m.registry.MustRegister(
		m.samplesTotal,
		m.errorsTotal,
		m.evaluationsTotal,
		m.scaleUpsTotal,
		m.deploymentPolls,
		m.consecutiveCount,
		m.phaseGauge,
		m.cpuHeadroom,
		m.clusterNodes,
		m.collectionLatency,
		m.phaseDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveSample(resourceGroup string, snap *models.ClusterSnapshot, latency time.Duration) {
	m.samplesTotal.WithLabelValues(resourceGroup).Inc()
	m.collectionLatency.WithLabelValues(resourceGroup).Observe(latency.Seconds())
	m.cpuHeadroom.WithLabelValues(resourceGroup).Set(snap.CPUHeadroom())
	m.clusterNodes.WithLabelValues(resourceGroup).Set(float64(snap.NodeCount()))
}

func (m *Metrics) ObserveEvaluation(resourceGroup string, eval models.Evaluation, state models.ScalingState) {
	result := "sufficient"
	if eval.Insufficient {
		result = "insufficient"
	}
	m.evaluationsTotal.WithLabelValues(resourceGroup, eval.Criteria.String(), result).Inc()
	m.consecutiveCount.WithLabelValues(resourceGroup).Set(float64(state.ConsecutiveInsufficient))
}

func (m *Metrics) ObservePoll(resourceGroup string, state models.ProvisioningState) {
	m.deploymentPolls.WithLabelValues(resourceGroup, string(state)).Inc()
}

func (m *Metrics) IncScaleUp(resourceGroup, result string) {
	m.scaleUpsTotal.WithLabelValues(resourceGroup, result).Inc()
}

func (m *Metrics) IncError(resourceGroup string, err error) {
	m.errorsTotal.WithLabelValues(resourceGroup, models.ErrorKind(err)).Inc()
}

// SetPhase marks phase as the active one and records how long the previous
// phase lasted.
func (m *Metrics) SetPhase(resourceGroup string, previous, phase models.AgentPhase, spent time.Duration) {
	for _, p := range allPhases {
		m.phaseGauge.WithLabelValues(resourceGroup, string(p)).Set(0)
	}
	m.phaseGauge.WithLabelValues(resourceGroup, string(phase)).Set(1)

	if previous != "" && previous != phase {
		m.phaseDuration.WithLabelValues(resourceGroup, string(previous)).Observe(spent.Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
