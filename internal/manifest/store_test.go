package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

const sourceManifest = `{
	"properties": {
		"mode": "Incremental",
		"template": {"resources": [{"name": "[concat('swarm-slave-', '(INDEX)')]"}]},
		"parameters": {
			"nodeCount": {"value": 3},
			"slaveCount": {"value": 1},
			"vmName": {"value": "slave(INDEX)"}
		}
	}
}`

type fakeSource struct {
	responses []error
	body      string
	calls     int
}

func (f *fakeSource) FetchManifest(ctx context.Context, resourceGroup string) ([]byte, error) {
	f.calls++
	if f.calls <= len(f.responses) && f.responses[f.calls-1] != nil {
		return nil, f.responses[f.calls-1]
	}
	return []byte(f.body), nil
}

func newTestStore(t *testing.T, source Source) *Store {
	return NewStore(Config{
		ResourceGroup:  "rg-swarm",
		Directory:      filepath.Join(t.TempDir(), "files"),
		MaxFetchTime:   time.Second,
		InitialBackoff: time.Millisecond,
	}, source)
}

func TestStore_EnsureDownloadsAndPersists(t *testing.T) {
	source := &fakeSource{body: sourceManifest}
	store := newTestStore(t, source)

	require.NoError(t, store.Ensure(context.Background()))
	assert.Equal(t, 1, source.calls)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var doc struct {
		Properties struct {
			Parameters map[string]struct {
				Value interface{} `json:"value"`
			} `json:"parameters"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(3), doc.Properties.Parameters["slaveCount"].Value)
	assert.Contains(t, string(data), "\n    \"properties\"")

	// Second call is served from memory.
	require.NoError(t, store.Ensure(context.Background()))
	assert.Equal(t, 1, source.calls)
}

func TestStore_EnsureUsesCachedFile(t *testing.T) {
	source := &fakeSource{body: sourceManifest}
	store := newTestStore(t, source)

	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"properties": {"parameters": {}}, "x": "(INDEX)"}`), 0o600))

	require.NoError(t, store.Ensure(context.Background()))
	assert.Equal(t, 0, source.calls)

	rendered, err := store.Render(2)
	require.NoError(t, err)
	assert.Contains(t, string(rendered), `"x": "(2)"`)
}

func TestStore_EnsureRetriesTransientErrors(t *testing.T) {
	transient := fmt.Errorf("%w: 503", models.ErrTransport)
	source := &fakeSource{body: sourceManifest, responses: []error{transient, transient}}
	store := newTestStore(t, source)

	require.NoError(t, store.Ensure(context.Background()))
	assert.Equal(t, 3, source.calls)
}

func TestStore_EnsureStopsOnConfigurationError(t *testing.T) {
	source := &fakeSource{responses: []error{fmt.Errorf("%w: no deployments", models.ErrConfiguration)}}
	store := newTestStore(t, source)

	err := store.Ensure(context.Background())
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Equal(t, 1, source.calls)
	assert.NoFileExists(t, store.Path())
}

func TestStore_EnsureGivesUp(t *testing.T) {
	source := &fakeSource{responses: []error{
		errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	store := NewStore(Config{
		Directory:      t.TempDir(),
		MaxFetchTime:   20 * time.Millisecond,
		InitialBackoff: 5 * time.Millisecond,
	}, source)

	err := store.Ensure(context.Background())
	assert.Error(t, err)
}

func TestStore_RenderSubstitutesEveryToken(t *testing.T) {
	store := newTestStore(t, &fakeSource{body: sourceManifest})
	require.NoError(t, store.Ensure(context.Background()))

	rendered, err := store.Render(4)
	require.NoError(t, err)

	assert.NotContains(t, string(rendered), "(INDEX)")
	assert.Contains(t, string(rendered), "swarm-slave-', '(4)'")
	assert.Contains(t, string(rendered), "slave(4)")
}

func TestStore_RenderBeforeEnsure(t *testing.T) {
	store := newTestStore(t, &fakeSource{})
	_, err := store.Render(1)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestInitializeWorkerCount(t *testing.T) {
	t.Run("creates slaveCount when absent", func(t *testing.T) {
		out, err := InitializeWorkerCount([]byte(`{"properties": {"parameters": {"nodeCount": {"value": 5}}}}`))
		require.NoError(t, err)
		assert.Contains(t, string(out), `"slaveCount": {`)
		assert.Contains(t, string(out), `"value": 5`)
	})

	t.Run("missing nodeCount", func(t *testing.T) {
		_, err := InitializeWorkerCount([]byte(`{"properties": {"parameters": {}}}`))
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := InitializeWorkerCount([]byte(`[]`))
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}
