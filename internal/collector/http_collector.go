package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
)

const (
	infoPath = "/info"
	pingPath = "/_ping"
)

// HTTPCollector reads the cluster status document from a Swarm manager's
// Docker API.
type HTTPCollector struct {
	client   *http.Client
	endpoint string
}

type HTTPCollectorConfig struct {
	// Endpoint is the manager address, e.g. tcp://10.0.0.4:2375.
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPCollector(cfg HTTPCollectorConfig) *HTTPCollector {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPCollector{
		client:   &http.Client{Timeout: timeout},
		endpoint: NormalizeEndpoint(cfg.Endpoint),
	}
}

// NormalizeEndpoint turns a Docker-style tcp:// address into an http:// base URL.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if rest, ok := strings.CutPrefix(endpoint, "tcp://"); ok {
		endpoint = "http://" + rest
	}
	return strings.TrimRight(endpoint, "/")
}

func (c *HTTPCollector) Endpoint() string {
	return c.endpoint
}

// Fetch returns the body of GET /info unparsed.
func (c *HTTPCollector) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	body, err := c.get(ctx, infoPath)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Fetched %d bytes from %s%s in %s", len(body), c.endpoint, infoPath, time.Since(start))
	return body, nil
}

// HealthCheck pings the manager.
func (c *HTTPCollector) HealthCheck(ctx context.Context) error {
	_, err := c.get(ctx, pingPath)
	return err
}

func (c *HTTPCollector) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint %q: %v", ErrCollectionFailed, c.endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: GET %s", ErrTimeout, path)
		}
		return nil, fmt.Errorf("%w: GET %s: %v", ErrCollectionFailed, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrCollectionFailed, path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCollectionFailed, path, err)
	}
	return body, nil
}

func (c *HTTPCollector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
