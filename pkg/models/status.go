package models

import "time"

type AgentPhase string

const (
	PhaseStarting    AgentPhase = "starting"
	PhaseMonitoring  AgentPhase = "monitoring"
	PhaseDeploying   AgentPhase = "deploying"
	PhaseStabilizing AgentPhase = "stabilizing"
	PhaseHalted      AgentPhase = "halted"
)

// AgentStatus is a point-in-time copy of the control loop's state.
type AgentStatus struct {
	ResourceGroup  string            `json:"resource_group"`
	Criteria       Criteria          `json:"criteria"`
	Phase          AgentPhase        `json:"phase"`
	Scaling        ScalingState      `json:"scaling"`
	LastSnapshot   *ClusterSnapshot  `json:"last_snapshot,omitempty"`
	LastEvaluation *Evaluation       `json:"last_evaluation,omitempty"`
	Deployment     *DeploymentRecord `json:"deployment,omitempty"`
	ScaleUps       int               `json:"scale_ups"`
	LastError      string            `json:"last_error,omitempty"`
	LastErrorKind  string            `json:"last_error_kind,omitempty"`
	PhaseEnteredAt time.Time         `json:"phase_entered_at"`
	StartedAt      time.Time         `json:"started_at"`
}

func (s AgentStatus) IsHalted() bool {
	return s.Phase == PhaseHalted
}
