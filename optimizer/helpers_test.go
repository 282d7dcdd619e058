package optimizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
)

// arithmetic builds n examples {q: "i+i", a: "2i"}.
func arithmetic(n int) []types.Example {
	examples := make([]types.Example, n)
	for i := range examples {
		examples[i] = types.NewExample(map[string]any{
			"q": fmt.Sprintf("%d+%d", i, i),
			"a": fmt.Sprintf("%d", 2*i),
		}, "q")
	}
	return examples
}

func solve(q string) string {
	var x, y int
	fmt.Sscanf(q, "%d+%d", &x, &y)
	return fmt.Sprintf("%d", x+y)
}

func exactMatch(ex types.Example, pred types.Prediction) (float64, error) {
	want, _ := ex.Get("a")
	got, _ := pred.Get("a")
	if want == got {
		return 1.0, nil
	}
	return 0.0, nil
}

// correctTeacher always answers correctly.
var correctTeacher = types.ProgramFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
	return map[string]any{"a": solve(inputs["q"].(string))}, nil
})

// failingTeacher always errors.
var failingTeacher = types.ProgramFunc(func(context.Context, map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("provider unavailable")
})

// instructedForward answers correctly only when the instruction tells it to add the numbers.
func instructedForward(_ context.Context, call program.Call) (map[string]any, error) {
	if strings.Contains(strings.ToLower(call.Instruction), "add the numbers") {
		return map[string]any{"a": solve(call.Inputs["q"].(string))}, nil
	}
	return map[string]any{"a": "unknown"}, nil
}

// demoForward answers correctly for questions it has seen in its demos, and for even left operands.
func demoForward(_ context.Context, call program.Call) (map[string]any, error) {
	q := call.Inputs["q"].(string)
	for _, d := range call.Demos {
		if dq, _ := d.Get("q"); dq == q {
			a, _ := d.Get("a")
			return map[string]any{"a": a}, nil
		}
	}
	var x int
	fmt.Sscanf(q, "%d+", &x)
	if x%2 == 0 {
		return map[string]any{"a": solve(q)}, nil
	}
	return map[string]any{"a": "unknown"}, nil
}

// proposingTeacher returns a fixed instruction proposal.
func proposingTeacher(proposal string) types.Program {
	return types.ProgramFunc(func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"proposal": proposal}, nil
	})
}

// staticStrategy reports a fixed result for every trajectory.
type staticStrategy struct {
	name       string
	applicable bool
	err        error
}

func (s staticStrategy) Name() string { return s.name }

func (s staticStrategy) Apply(_ context.Context, prog *program.Predict, _ Trajectory, _ StrategyOptions) (*program.Predict, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	if !s.applicable {
		return nil, false, nil
	}
	return prog.WithInstruction(s.name, prog.Instruction()+" "+s.name), true, nil
}
