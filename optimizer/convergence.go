package optimizer

import "fmt"

// ConvergenceCheck decides from the iteration history whether the search should stop.
type ConvergenceCheck interface {
	CheckConvergence(history []IterationRecord) (bool, string)
	Name() string
}

// NoImprovementCheck stops after Patience consecutive iterations without a strict improvement.
type NoImprovementCheck struct {
	Patience int
}

func (c NoImprovementCheck) Name() string {
	return "no_improvement"
}

func (c NoImprovementCheck) CheckConvergence(history []IterationRecord) (bool, string) {
	if c.Patience <= 0 || len(history) < c.Patience {
		return false, ""
	}

	since := 0
	for i := len(history) - 1; i >= 0 && !history[i].Improved; i-- {
		since++
	}
	if since >= c.Patience {
		return true, fmt.Sprintf("no improvement for %d iterations", since)
	}
	return false, ""
}
