// Package manifest keeps the deployment request used to add worker nodes. It
// is fetched once from the resource group's original deployment, cached on
// local disk, and rendered with the next node index on every scale-up.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

const DefaultIndexToken = "(INDEX)"

// Source exports the deployment request body of an existing deployment.
type Source interface {
	FetchManifest(ctx context.Context, resourceGroup string) ([]byte, error)
}

type Config struct {
	ResourceGroup  string
	Directory      string
	FileName       string
	IndexToken     string
	MaxFetchTime   time.Duration
	InitialBackoff time.Duration
}

type Store struct {
	config Config
	source Source
	cached []byte
	mu     sync.RWMutex
}

func NewStore(cfg Config, source Source) *Store {
	if cfg.Directory == "" {
		cfg.Directory = "files"
	}
	if cfg.FileName == "" {
		cfg.FileName = "deploymentTemplate.json"
	}
	if cfg.IndexToken == "" {
		cfg.IndexToken = DefaultIndexToken
	}
	if cfg.MaxFetchTime == 0 {
		cfg.MaxFetchTime = 2 * time.Minute
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}

	return &Store{config: cfg, source: source}
}

func (s *Store) Path() string {
	return filepath.Join(s.config.Directory, s.config.FileName)
}

// Ensure makes the manifest available, loading the local copy when present
// and otherwise downloading, initialising and persisting it.
func (s *Store) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return nil
	}

	log := logger.WithResourceGroup(s.config.ResourceGroup)

	data, err := os.ReadFile(s.Path())
	if err == nil {
		if !json.Valid(data) {
			return fmt.Errorf("%w: cached manifest %s is not valid JSON", models.ErrConfiguration, s.Path())
		}
		log.Infof("Using cached deployment manifest %s", s.Path())
		s.cached = data
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read manifest %s: %w", s.Path(), err)
	}

	log.Info("Downloading deployment manifest for later scale-ups")

	raw, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	data, err = InitializeWorkerCount(raw)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.config.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(s.Path(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	log.Infof("Deployment manifest saved to %s", s.Path())
	s.cached = data
	return nil
}

func (s *Store) fetch(ctx context.Context) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.InitialBackoff
	b.MaxElapsedTime = s.config.MaxFetchTime

	var raw []byte
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		raw, err = s.source.FetchManifest(ctx, s.config.ResourceGroup)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrConfiguration) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.WithResourceGroup(s.config.ResourceGroup).Warnf("Manifest download attempt %d failed: %v", attempt, err)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to download deployment manifest: %w", err)
	}
	return raw, nil
}

// Render returns the manifest with every index token replaced by the node
// index, e.g. "(INDEX)" becomes "(3)".
func (s *Store) Render(index int) ([]byte, error) {
	s.mu.RLock()
	data := s.cached
	s.mu.RUnlock()

	if data == nil {
		return nil, fmt.Errorf("%w: deployment manifest not loaded", models.ErrConfiguration)
	}

	rendered := bytes.ReplaceAll(data, []byte(s.config.IndexToken), []byte("("+strconv.Itoa(index)+")"))
	if !json.Valid(rendered) {
		return nil, fmt.Errorf("%w: rendered manifest is not valid JSON", models.ErrConfiguration)
	}
	return rendered, nil
}

// InitializeWorkerCount copies the nodeCount parameter value into
// slaveCount and returns the manifest as indented JSON.
func InitializeWorkerCount(raw []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: manifest is not a JSON object: %v", models.ErrConfiguration, err)
	}

	props, ok := doc["properties"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: manifest has no properties", models.ErrConfiguration)
	}
	params, ok := props["parameters"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: manifest has no parameters", models.ErrConfiguration)
	}
	nodeCount, ok := params["nodeCount"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: manifest has no nodeCount parameter", models.ErrConfiguration)
	}

	slaveCount, ok := params["slaveCount"].(map[string]interface{})
	if !ok {
		slaveCount = map[string]interface{}{}
		params["slaveCount"] = slaveCount
	}
	slaveCount["value"] = nodeCount["value"]

	return json.MarshalIndent(doc, "", "    ")
}
