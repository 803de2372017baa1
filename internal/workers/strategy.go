package workers

import (
	"fmt"
	"strings"

	"github.com/TheMichaelB/jcrypt/internal/models"
)

// Strategy names a coordination discipline for claiming tasks and joining workers.
type Strategy string

const (
	// StrategyPerTask binds one goroutine to each task, at most Workers alive at once.
	StrategyPerTask Strategy = "per-task"

	// StrategyAtomic claims from an atomic cursor and joins with a WaitGroup.
	StrategyAtomic Strategy = "atomic"

	// StrategyLatch claims from an atomic cursor and joins on a count-down latch.
	StrategyLatch Strategy = "latch"

	// StrategyBarrier claims from an atomic cursor and joins at a barrier shared with the caller.
	StrategyBarrier Strategy = "barrier"

	// StrategyLock claims from a mutex-guarded cursor.
	StrategyLock Strategy = "lock"

	// StrategyPool runs the claim loop inside a bounded goroutine pool.
	StrategyPool Strategy = "pool"
)

// DefaultStrategy is used when none is configured.
const DefaultStrategy = StrategyPool

var allStrategies = []Strategy{
	StrategyPerTask,
	StrategyAtomic,
	StrategyLatch,
	StrategyBarrier,
	StrategyLock,
	StrategyPool,
}

// Strategies returns every supported strategy.
func Strategies() []Strategy {
	out := make([]Strategy, len(allStrategies))
	copy(out, allStrategies)
	return out
}

// ParseStrategy resolves a strategy name. An empty name selects DefaultStrategy.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultStrategy, nil
	}

	for _, s := range allStrategies {
		if string(s) == name {
			return s, nil
		}
	}

	return "", models.NewError(models.KindInvalidConfiguration, "parse strategy",
		fmt.Errorf("unknown strategy %q", name))
}

func (s Strategy) valid() bool {
	for _, known := range allStrategies {
		if s == known {
			return true
		}
	}
	return false
}
