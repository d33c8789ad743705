package collector

import (
	"context"
	"fmt"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

var (
	ErrCollectionFailed = fmt.Errorf("%w: metric collection failed", models.ErrTransport)
	ErrTimeout          = fmt.Errorf("%w: collection timeout", models.ErrTransport)
)

// Collector fetches the raw cluster status document from the metrics source.
type Collector interface {
	// Fetch returns the raw status payload
	Fetch(ctx context.Context) ([]byte, error)

	// HealthCheck verifies the collector can reach its data source
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the collector
	Close() error
}
