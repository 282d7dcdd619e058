package evaluate

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/teilomillet/teleprompt/types"
)

// Outcome is the scored result of one unit of work.
type Outcome struct {
	Index      int
	Example    types.Example
	Prediction types.Prediction
	Score      float64
	Err        error
	Duration   time.Duration
}

// OK reports whether the unit completed without a program or metric error.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// EvalResult aggregates an evaluation pass. PerExample follows the order of the input examples.
type EvalResult struct {
	AverageScore float64
	PerExample   []Outcome
	Total        int
	Failures     int
}

func newEvalResult(outcomes []Outcome) *EvalResult {
	result := &EvalResult{PerExample: outcomes, Total: len(outcomes)}
	if len(outcomes) == 0 {
		return result
	}
	var sum float64
	for _, o := range outcomes {
		sum += o.Score
		if o.Err != nil {
			result.Failures++
		}
	}
	result.AverageScore = sum / float64(len(outcomes))
	return result
}

// Errors returns the unit errors in input order.
func (r *EvalResult) Errors() []error {
	var errs []error
	for _, o := range r.PerExample {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// WriteTable writes a per-example report followed by a summary line.
func (r *EvalResult) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tDURATION\tINPUTS\tERROR")
	for _, o := range r.PerExample {
		errText := "-"
		if o.Err != nil {
			errText = o.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\t%s\n",
			o.Index, o.Score, o.Duration.Round(time.Millisecond), summarize(o.Example.Inputs()), errText)
	}
	fmt.Fprintf(tw, "avg\t%.3f\t\t%d examples\t%d failed\n", r.AverageScore, r.Total, r.Failures)
	return tw.Flush()
}

func summarize(inputs map[string]any) string {
	s := fmt.Sprint(inputs)
	s = strings.TrimPrefix(s, "map")
	if runes := []rune(s); len(runes) > 48 {
		s = string(runes[:45]) + "..."
	}
	return s
}
