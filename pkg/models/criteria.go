package models

import (
	"fmt"
	"strings"
)

// Criteria selects which resource the agent watches.
type Criteria string

const (
	CriteriaCPU    Criteria = "cpu"
	CriteriaMemory Criteria = "memory"
)

// ParseCriteria accepts "cpu" or "memory" in any case.
func ParseCriteria(s string) (Criteria, error) {
	switch Criteria(strings.ToLower(strings.TrimSpace(s))) {
	case CriteriaCPU:
		return CriteriaCPU, nil
	case CriteriaMemory:
		return CriteriaMemory, nil
	default:
		return "", fmt.Errorf("%w: autoscale criteria must be either cpu or memory, got %q", ErrConfiguration, s)
	}
}

func (c Criteria) String() string {
	return string(c)
}

func (c Criteria) IsValid() bool {
	return c == CriteriaCPU || c == CriteriaMemory
}
