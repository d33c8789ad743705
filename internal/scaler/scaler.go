package scaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

var (
	ErrEmptyResourceList = fmt.Errorf("%w: resource group reported no resources", models.ErrTransport)
	ErrDeploymentMissing = fmt.Errorf("%w: deployment not found", models.ErrTransport)
)

// Provisioner is the cloud control plane the scaler submits deployments to.
type Provisioner interface {
	// ListResources counts the worker resources of a resource group.
	ListResources(ctx context.Context, resourceGroup string) (int, error)

	// CreateOrUpdateDeployment submits a deployment request body.
	CreateOrUpdateDeployment(ctx context.Context, resourceGroup, name string, body []byte) error

	// GetDeployment reports the provisioning state of a deployment.
	GetDeployment(ctx context.Context, resourceGroup, name string) (string, error)
}

// ManifestRenderer produces the deployment request body for a node index.
type ManifestRenderer interface {
	Render(index int) ([]byte, error)
}

// Outcome is the result of a single deployment poll.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

type Config struct {
	MaxNodes    int
	CallTimeout time.Duration
	Now         func() time.Time
}

// Scaler adds one node per deployment and reports on its progress.
type Scaler struct {
	provisioner Provisioner
	manifest    ManifestRenderer
	config      Config
}

func New(provisioner Provisioner, manifest ManifestRenderer, cfg Config) *Scaler {
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 25
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scaler{
		provisioner: provisioner,
		manifest:    manifest,
		config:      cfg,
	}
}

func (s *Scaler) MaxNodes() int {
	return s.config.MaxNodes
}

func (s *Scaler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.CallTimeout)
}

// Submit counts the current fleet and, if it is below the cap, submits a
// deployment for one more node. The node index is the current count minus
// one.
func (s *Scaler) Submit(ctx context.Context, resourceGroup string) (*models.DeploymentRecord, error) {
	log := logger.WithResourceGroup(resourceGroup)

	callCtx, cancel := s.callContext(ctx)
	count, err := s.provisioner.ListResources(callCtx, resourceGroup)
	cancel()
	if err != nil {
		return nil, transportError("list resources", err)
	}

	if count > s.config.MaxNodes {
		return nil, fmt.Errorf("%w: resource group %s has %d nodes, limit is %d",
			models.ErrCapacityExceeded, resourceGroup, count, s.config.MaxNodes)
	}
	if count == 0 {
		return nil, ErrEmptyResourceList
	}

	index := count - 1
	body, err := s.manifest.Render(index)
	if err != nil {
		return nil, err
	}

	record := models.NewDeploymentRecord(resourceGroup, index, s.config.Now())

	callCtx, cancel = s.callContext(ctx)
	err = s.provisioner.CreateOrUpdateDeployment(callCtx, resourceGroup, record.Name, body)
	cancel()
	if err != nil {
		return nil, transportError("submit deployment", err)
	}

	log.WithField("deployment", record.Name).Infof("Submitted deployment for node index %d (%d of %d)",
		index, count, s.config.MaxNodes)
	return record, nil
}

// PollOnce asks for the deployment's state once and updates the record.
// Unknown states are logged and leave the record untouched.
func (s *Scaler) PollOnce(ctx context.Context, record *models.DeploymentRecord) (Outcome, error) {
	log := logger.WithDeployment(record.ResourceGroup, record.Name)

	callCtx, cancel := s.callContext(ctx)
	state, err := s.provisioner.GetDeployment(callCtx, record.ResourceGroup, record.Name)
	cancel()
	if err != nil {
		return OutcomePending, transportError("poll deployment", err)
	}

	now := s.config.Now()
	switch models.ProvisioningState(state) {
	case models.ProvisioningRunning, models.ProvisioningAccepted:
		record.Transition(models.ProvisioningState(state), now)
		log.Debugf("Deployment %s", state)
		return OutcomePending, nil

	case models.ProvisioningSucceeded:
		record.Transition(models.ProvisioningSucceeded, now)
		log.Info("Deployment succeeded")
		return OutcomeSucceeded, nil

	case models.ProvisioningFailed:
		record.Transition(models.ProvisioningFailed, now)
		log.Error("Deployment failed")
		return OutcomeFailed, fmt.Errorf("%w: %s in resource group %s",
			models.ErrDeploymentFailed, record.Name, record.ResourceGroup)

	default:
		log.Warnf("Unhandled provisioning state %q", state)
		return OutcomePending, nil
	}
}

// transportError keeps classified errors as they are and files everything
// else under ErrTransport.
func transportError(op string, err error) error {
	if models.ErrorKind(err) != "unknown" {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out", models.ErrTransport, op)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrTransport, op, err)
}
