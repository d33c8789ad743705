package scaler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/internal/simulator"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// SimulatedProvisioner stands in for the cloud control plane. Every
// deployment it accepts adds one node to the in-memory swarm after the
// provision time.
type SimulatedProvisioner struct {
	swarm         *simulator.Swarm
	stateTracker  *StateTracker
	provisionTime time.Duration
	failNext      bool
	mu            sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SimulatorConfig struct {
	ProvisionTime time.Duration
}

func NewSimulatedProvisioner(swarm *simulator.Swarm, cfg SimulatorConfig) *SimulatedProvisioner {
	if cfg.ProvisionTime == 0 {
		cfg.ProvisionTime = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SimulatedProvisioner{
		swarm:         swarm,
		stateTracker:  NewStateTracker(),
		provisionTime: cfg.ProvisionTime,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Close abandons deployments still provisioning and waits for their
// goroutines to exit. They stay in their last reported state.
func (p *SimulatedProvisioner) Close() error {
	// Cancel under mu so no deployment is started after Wait begins.
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// ListResources reports one extension per swarm node plus the manager's.
func (p *SimulatedProvisioner) ListResources(ctx context.Context, resourceGroup string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	return p.swarm.NodeCount() + 1, nil
}

func (p *SimulatedProvisioner) CreateOrUpdateDeployment(ctx context.Context, resourceGroup, name string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if p.ctx.Err() != nil {
		return fmt.Errorf("%w: simulated provisioner is closed", models.ErrTransport)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: deployment %s: request body is not valid JSON", models.ErrTransport, name)
	}

	now := time.Now()
	p.stateTracker.Add(&SimulatedDeployment{
		Name:          name,
		ResourceGroup: resourceGroup,
		State:         models.ProvisioningAccepted,
		CreatedAt:     now,
		UpdatedAt:     now,
	})

	fail := p.failNext
	p.failNext = false

	p.wg.Add(1)
	go p.simulateProvisioning(name, fail)
	return nil
}

func (p *SimulatedProvisioner) simulateProvisioning(name string, fail bool) {
	defer p.wg.Done()

	if !p.wait(p.provisionTime / 2) {
		return
	}
	if err := p.stateTracker.UpdateState(name, models.ProvisioningRunning); err != nil {
		logger.Errorf("Failed to start simulated deployment %s: %v", name, err)
		return
	}

	if !p.wait(p.provisionTime - p.provisionTime/2) {
		return
	}
	if fail {
		if err := p.stateTracker.UpdateState(name, models.ProvisioningFailed); err != nil {
			logger.Errorf("Failed to fail simulated deployment %s: %v", name, err)
		}
		return
	}

	if err := p.stateTracker.Complete(name, p.swarm.AddNode()); err != nil {
		logger.Errorf("Failed to complete simulated deployment %s: %v", name, err)
	}
}

// wait reports false when the provisioner was closed first.
func (p *SimulatedProvisioner) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *SimulatedProvisioner) GetDeployment(ctx context.Context, resourceGroup, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransport, err)
	}

	d, exists := p.stateTracker.Get(name)
	if !exists || d.ResourceGroup != resourceGroup {
		return "", fmt.Errorf("%s: %w", name, ErrDeploymentMissing)
	}
	return string(d.State), nil
}

// FailNextDeployment makes the next accepted deployment end in Failed.
func (p *SimulatedProvisioner) FailNextDeployment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = true
}

// FetchManifest returns a minimal deployment request for the simulated swarm
// so the manifest store can run without a cloud account.
func (p *SimulatedProvisioner) FetchManifest(ctx context.Context, resourceGroup string) ([]byte, error) {
	manifest := map[string]interface{}{
		"properties": map[string]interface{}{
			"mode": "Incremental",
			"template": map[string]interface{}{
				"resources": []interface{}{
					map[string]interface{}{
						"type": "Microsoft.Compute/virtualMachines",
						"name": "swarm-slave(INDEX)",
					},
				},
			},
			"parameters": map[string]interface{}{
				"nodeCount":  map[string]interface{}{"value": p.swarm.NodeCount()},
				"slaveCount": map[string]interface{}{"value": 0},
			},
		},
	}
	return json.Marshal(manifest)
}
