package scaler

import (
	"sync"
	"time"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// SimulatedDeployment is a deployment known to the simulated provisioner.
type SimulatedDeployment struct {
	Name          string
	ResourceGroup string
	State         models.ProvisioningState
	Node          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StateTracker holds the provisioning state of simulated deployments.
type StateTracker struct {
	deployments map[string]*SimulatedDeployment
	mu          sync.RWMutex
}

func NewStateTracker() *StateTracker {
	return &StateTracker{deployments: make(map[string]*SimulatedDeployment)}
}

func (t *StateTracker) Add(d *SimulatedDeployment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.deployments[d.Name] = d

	logger.WithDeployment(d.ResourceGroup, d.Name).Infof("Simulated deployment added with state %s", d.State)
}

func (t *StateTracker) UpdateState(name string, newState models.ProvisioningState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, exists := t.deployments[name]
	if !exists {
		return ErrDeploymentMissing
	}

	oldState := d.State
	d.State = newState
	d.UpdatedAt = time.Now()

	logger.WithDeployment(d.ResourceGroup, name).Infof("Simulated deployment state changed: %s -> %s", oldState, newState)
	return nil
}

// Complete records the node a deployment produced and marks it Succeeded in
// one step, so a poll never sees Succeeded without the node.
func (t *StateTracker) Complete(name, node string) error {
	t.mu.Lock()
	d, exists := t.deployments[name]
	if exists {
		d.Node = node
	}
	t.mu.Unlock()

	if !exists {
		return ErrDeploymentMissing
	}
	return t.UpdateState(name, models.ProvisioningSucceeded)
}

func (t *StateTracker) Get(name string) (SimulatedDeployment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, exists := t.deployments[name]
	if !exists {
		return SimulatedDeployment{}, false
	}
	return *d, true
}
