package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/swarm-autoscaler/internal/simulator"
	"github.com/OldStager01/swarm-autoscaler/internal/snapshot"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"tcp://10.0.0.4:2375", "http://10.0.0.4:2375"},
		{"http://swarm:2375/", "http://swarm:2375"},
		{" tcp://swarm:2375 ", "http://swarm:2375"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeEndpoint(tt.input))
		})
	}
}

func TestHTTPCollector_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"NCPU": 2, "DriverStatus": []}`))
	}))
	defer srv.Close()

	c := NewHTTPCollector(HTTPCollectorConfig{Endpoint: srv.URL})
	defer c.Close()

	body, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"NCPU": 2, "DriverStatus": []}`, string(body))
}

func TestHTTPCollector_Errors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewHTTPCollector(HTTPCollectorConfig{Endpoint: srv.URL}).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrCollectionFailed)
		assert.ErrorIs(t, err, models.ErrTransport)
	})

	t.Run("context deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewHTTPCollector(HTTPCollectorConfig{Endpoint: srv.URL}).Fetch(ctx)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, models.ErrTransport)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewHTTPCollector(HTTPCollectorConfig{Endpoint: url}).Fetch(context.Background())
		assert.ErrorIs(t, err, models.ErrTransport)
	})
}

func TestHTTPCollector_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_ping" {
			w.Write([]byte("OK"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPCollector(HTTPCollectorConfig{Endpoint: srv.URL}).HealthCheck(context.Background()))
}

func TestMockCollector_PayloadParses(t *testing.T) {
	swarm := simulator.NewSwarm(simulator.SwarmConfig{InitialNodes: 2, CPUsPerNode: 2, CPUDemand: 4})
	c := NewMockCollector(swarm)

	body, err := c.Fetch(context.Background())
	require.NoError(t, err)

	snap, err := snapshot.Parse(body)
	require.NoError(t, err)
	assert.Equal(t, 4.0, snap.TotalCPUCapacity)
	assert.Equal(t, 4.0, snap.UsedCPUShare)
	assert.Len(t, snap.MemoryNodes, 2)

	c.SetShouldFail(true, nil)
	_, err = c.Fetch(context.Background())
	assert.ErrorIs(t, err, models.ErrTransport)
}

func TestHTTPCollector_HealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPCollector(HTTPCollectorConfig{Endpoint: srv.URL}).HealthCheck(context.Background())
	assert.ErrorIs(t, err, models.ErrTransport)
}
