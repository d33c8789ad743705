package models

import (
	"fmt"
	"time"
)

type ProvisioningState string

const (
	ProvisioningSubmitted ProvisioningState = "Submitted"
	ProvisioningAccepted  ProvisioningState = "Accepted"
	ProvisioningRunning   ProvisioningState = "Running"
	ProvisioningSucceeded ProvisioningState = "Succeeded"
	ProvisioningFailed    ProvisioningState = "Failed"
)

func (s ProvisioningState) IsTerminal() bool {
	return s == ProvisioningSucceeded || s == ProvisioningFailed
}

// DeploymentRecord tracks the single in-flight scale-up deployment.
type DeploymentRecord struct {
	Name          string            `json:"name"`
	ResourceGroup string            `json:"resource_group"`
	NodeIndex     int               `json:"node_index"`
	State         ProvisioningState `json:"provisioning_state"`
	SubmittedAt   time.Time         `json:"submitted_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// DeploymentName returns the timestamp-qualified name used for a deployment
// submitted at t.
func DeploymentName(t time.Time) string {
	return fmt.Sprintf("Deployment-%d", t.UnixMilli())
}

func NewDeploymentRecord(resourceGroup string, nodeIndex int, now time.Time) *DeploymentRecord {
	return &DeploymentRecord{
		Name:          DeploymentName(now),
		ResourceGroup: resourceGroup,
		NodeIndex:     nodeIndex,
		State:         ProvisioningSubmitted,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
}

func (d *DeploymentRecord) Transition(state ProvisioningState, now time.Time) {
	d.State = state
	d.UpdatedAt = now
	if state.IsTerminal() {
		d.CompletedAt = &now
	}
}

func (d *DeploymentRecord) IsTerminal() bool {
	return d.State.IsTerminal()
}
