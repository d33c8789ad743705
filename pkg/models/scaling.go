package models

// ScalingState carries the hysteresis counter between evaluations.
type ScalingState struct {
	ConsecutiveInsufficient int `json:"consecutive_insufficient"`
}

// Evaluation is the outcome of applying the scaling policy to one snapshot.
type Evaluation struct {
	Criteria     Criteria `json:"criteria"`
	Insufficient bool     `json:"insufficient"`
	Triggered    bool     `json:"triggered"`
	Count        int      `json:"count"`
}
