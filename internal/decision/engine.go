package decision

import (
	"fmt"
	"strings"

	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

type Config struct {
	ResourceGroup    string
	TriggerThreshold int
	MinFreeMemoryGiB float64
}

// Engine applies the insufficiency policy for the configured criteria and
// debounces it with a consecutive-sample counter.
type Engine struct {
	config Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.TriggerThreshold <= 0 {
		cfg.TriggerThreshold = 2
	}
	if cfg.MinFreeMemoryGiB == 0 {
		cfg.MinFreeMemoryGiB = 1.0
	}

	return &Engine{config: cfg}
}

// Evaluate judges snap under criteria and advances state. When the trigger
// fires the returned state has its counter reset to zero.
func (e *Engine) Evaluate(
	snap *models.ClusterSnapshot,
	criteria models.Criteria,
	state models.ScalingState,
) (models.Evaluation, models.ScalingState, error) {
	var insufficient bool

	switch criteria {
	case models.CriteriaCPU:
		insufficient = e.cpuInsufficient(snap)
	case models.CriteriaMemory:
		insufficient = e.memoryInsufficient(snap)
	default:
		return models.Evaluation{}, state, fmt.Errorf("%w: unknown criteria %q", models.ErrConfiguration, criteria)
	}

	next := state
	if insufficient {
		next.ConsecutiveInsufficient++
		logger.WithResourceGroup(e.config.ResourceGroup).Infof(
			"Not enough %s. Checking again (%d/%d)",
			strings.ToUpper(string(criteria)), next.ConsecutiveInsufficient, e.config.TriggerThreshold,
		)
	} else if next.ConsecutiveInsufficient > 0 {
		next.ConsecutiveInsufficient--
	}

	eval := models.Evaluation{
		Criteria:     criteria,
		Insufficient: insufficient,
		Count:        next.ConsecutiveInsufficient,
	}

	if next.ConsecutiveInsufficient >= e.config.TriggerThreshold {
		eval.Triggered = true
		next.ConsecutiveInsufficient = 0
		logger.WithResourceGroup(e.config.ResourceGroup).Infof(
			"Decision: scale_up (%s insufficient for %d consecutive samples)",
			criteria, eval.Count,
		)
	}

	return eval, next, nil
}

// cpuInsufficient reports zero headroom: every CPU share is reserved.
func (e *Engine) cpuInsufficient(snap *models.ClusterSnapshot) bool {
	logger.WithResourceGroup(e.config.ResourceGroup).Infof(
		"Total CPU share available for jobs: %g out of %g",
		snap.CPUHeadroom(), snap.TotalCPUCapacity,
	)
	return snap.UsedCPUShare == snap.TotalCPUCapacity
}

// memoryInsufficient walks nodes in report order and stops at the first node
// with at least MinFreeMemoryGiB free, which makes the whole cluster count as
// sufficient. Only a run of short nodes with no roomy node after them is
// insufficient.
func (e *Engine) memoryInsufficient(snap *models.ClusterSnapshot) bool {
	insufficient := false
	var b strings.Builder
	b.WriteString("Available memory:")

	for i, node := range snap.MemoryNodes {
		free := node.FreeGiB()
		fmt.Fprintf(&b, " node%d=%gGiB", i+1, free)

		if free < e.config.MinFreeMemoryGiB {
			insufficient = true
			continue
		}
		insufficient = false
		break
	}

	logger.WithResourceGroup(e.config.ResourceGroup).Info(b.String())
	return insufficient
}
