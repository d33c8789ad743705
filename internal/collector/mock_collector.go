package collector

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/OldStager01/swarm-autoscaler/internal/simulator"
)

// MockCollector serves the /info document of an in-process simulated swarm.
type MockCollector struct {
	swarm        *simulator.Swarm
	shouldFail   bool
	failureError error
	mu           sync.Mutex
}

func NewMockCollector(swarm *simulator.Swarm) *MockCollector {
	return &MockCollector{swarm: swarm}
}

func (c *MockCollector) SetShouldFail(shouldFail bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldFail = shouldFail
	c.failureError = err
}

func (c *MockCollector) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.shouldFail {
		return nil
	}
	if c.failureError != nil {
		return c.failureError
	}
	return ErrCollectionFailed
}

func (c *MockCollector) Fetch(ctx context.Context) ([]byte, error) {
	if err := c.failure(); err != nil {
		return nil, err
	}
	return json.Marshal(c.swarm.Info())
}

func (c *MockCollector) HealthCheck(ctx context.Context) error {
	return c.failure()
}

func (c *MockCollector) Close() error {
	return nil
}
