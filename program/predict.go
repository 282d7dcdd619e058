// Package program provides Predict, the immutable program value the optimizers search over.
//
// A Predict carries an instruction, an ordered list of demonstrations and provenance metadata.
// The call to the underlying model is delegated to a Forward function, so the same value
// can wrap an LLM client, a composed pipeline or a test double.
package program

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/teilomillet/teleprompt/types"
)

// DefaultMaxDemos bounds the demonstration list when no explicit limit is given.
const DefaultMaxDemos = 16

// Call is what a Forward receives for one execution.
type Call struct {
	Instruction string
	Demos       []types.Example
	Inputs      map[string]any
}

// Forward performs one execution given the program's current instruction and demos.
// It must be safe for concurrent use.
type Forward func(ctx context.Context, call Call) (map[string]any, error)

// Predict is an immutable program. Every With* method returns a new value and never touches
// the receiver, so variants can be executed concurrently while the optimizer derives new ones.
type Predict struct {
	id          string
	parent      string
	name        string
	instruction string
	demos       []types.Example
	maxDemos    int
	lineage     []string
	forward     Forward
}

// Option configures a Predict at construction time.
type Option func(*Predict)

// WithInstruction sets the initial instruction.
func WithInstruction(instruction string) Option {
	return func(p *Predict) {
		p.instruction = instruction
	}
}

// WithDemos sets the initial demonstrations.
func WithDemos(demos ...types.Example) Option {
	return func(p *Predict) {
		p.demos = slices.Clone(demos)
	}
}

// WithMaxDemos bounds the demonstration list. Values below zero are treated as zero.
func WithMaxDemos(n int) Option {
	return func(p *Predict) {
		p.maxDemos = max(n, 0)
	}
}

// New creates a Predict named name that executes through forward.
func New(name string, forward Forward, opts ...Option) *Predict {
	p := &Predict{
		id:       uuid.NewString(),
		name:     name,
		maxDemos: DefaultMaxDemos,
		forward:  forward,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.demos = truncate(p.demos, p.maxDemos)
	return p
}

// Execute runs the program on inputs.
func (p *Predict) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if p.forward == nil {
		return nil, types.NewError(types.ErrorTypeExecution, "program "+p.name+" has no forward function", nil)
	}
	return p.forward(ctx, Call{
		Instruction: p.instruction,
		Demos:       slices.Clone(p.demos),
		Inputs:      maps.Clone(inputs),
	})
}

func (p *Predict) ID() string          { return p.id }
func (p *Predict) Parent() string      { return p.parent }
func (p *Predict) Name() string        { return p.name }
func (p *Predict) Instruction() string { return p.instruction }
func (p *Predict) MaxDemos() int       { return p.maxDemos }
func (p *Predict) NumDemos() int       { return len(p.demos) }

// Demos returns a copy of the demonstration list.
func (p *Predict) Demos() []types.Example {
	return slices.Clone(p.demos)
}

// Lineage returns the ordered list of steps that produced this variant from its root program.
func (p *Predict) Lineage() []string {
	return slices.Clone(p.lineage)
}

// derive copies p into a new variant with a fresh ID and step appended to the lineage.
func (p *Predict) derive(step string) *Predict {
	return &Predict{
		id:          uuid.NewString(),
		parent:      p.id,
		name:        p.name,
		instruction: p.instruction,
		demos:       slices.Clone(p.demos),
		maxDemos:    p.maxDemos,
		lineage:     append(slices.Clone(p.lineage), step),
		forward:     p.forward,
	}
}

// WithDemos returns a variant whose demonstrations are demos, truncated to MaxDemos.
func (p *Predict) WithDemos(step string, demos []types.Example) *Predict {
	next := p.derive(step)
	next.demos = truncate(slices.Clone(demos), next.maxDemos)
	return next
}

// AppendDemo returns a variant with demo appended. When the list is full the oldest
// demonstration is evicted. With a limit of zero the variant carries no demos.
func (p *Predict) AppendDemo(step string, demo types.Example) *Predict {
	next := p.derive(step)
	if next.maxDemos == 0 {
		next.demos = nil
		return next
	}
	next.demos = append(next.demos, demo)
	if over := len(next.demos) - next.maxDemos; over > 0 {
		next.demos = next.demos[over:]
	}
	return next
}

// WithInstruction returns a variant using instruction.
func (p *Predict) WithInstruction(step, instruction string) *Predict {
	next := p.derive(step)
	next.instruction = instruction
	return next
}

// WithMaxDemos returns a variant with a new demonstration limit, truncating if needed.
func (p *Predict) WithMaxDemos(n int) *Predict {
	next := p.derive("max_demos")
	next.maxDemos = max(n, 0)
	next.demos = truncate(next.demos, next.maxDemos)
	return next
}

// HasDemo reports whether an equal demonstration is already attached.
func (p *Predict) HasDemo(demo types.Example) bool {
	return slices.ContainsFunc(p.demos, demo.Equal)
}

func truncate(demos []types.Example, n int) []types.Example {
	if len(demos) > n {
		return demos[:n]
	}
	return demos
}
