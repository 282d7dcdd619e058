package types

import "maps"

// Prediction is the result of running a Program on one Example.
// Either Outputs and Score are meaningful, or Err is set.
type Prediction struct {
	Outputs map[string]any
	Score   float64
	Err     error
}

// Get returns the output stored under key.
func (p Prediction) Get(key string) (any, bool) {
	v, ok := p.Outputs[key]
	return v, ok
}

// OK reports whether the program produced outputs.
func (p Prediction) OK() bool {
	return p.Err == nil
}

// WithScore returns a copy of the prediction carrying score.
func (p Prediction) WithScore(score float64) Prediction {
	return Prediction{Outputs: maps.Clone(p.Outputs), Score: score, Err: p.Err}
}
