package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/teilomillet/teleprompt/evaluate"
	"github.com/teilomillet/teleprompt/program"
	"github.com/teilomillet/teleprompt/types"
	"github.com/teilomillet/teleprompt/utils"
)

// instructionProposal is the payload the teacher is asked to return. Either a full rewrite or
// a single rule to append to the current instruction.
type instructionProposal struct {
	Instruction string `json:"instruction,omitempty" jsonschema:"description=Complete replacement instruction" validate:"required_without=Rule,max=4000"`
	Rule        string `json:"rule,omitempty" jsonschema:"description=One rule to append to the current instruction" validate:"required_without=Instruction,max=1000"`
	Reasoning   string `json:"reasoning,omitempty" jsonschema:"description=Why the change fixes the worse output"`
}

var (
	proposalSchemaOnce sync.Once
	proposalSchema     string
)

func instructionProposalSchema() string {
	proposalSchemaOnce.Do(func() {
		schema := jsonschema.Reflect(&instructionProposal{})
		data, err := json.Marshal(schema)
		if err != nil {
			proposalSchema = "{}"
			return
		}
		proposalSchema = string(data)
	})
	return proposalSchema
}

const rewriteInstructionTask = `You are improving the instruction of a language model program.
You are given an input, a poor answer and, when available, a better answer to the same input.
Propose a change to the instruction that would make the poor answer unlikely.

Respond ONLY with a raw JSON object matching response_schema. Set "rule" to append a single rule,
or "instruction" to replace the instruction entirely.`

// RewriteInstruction asks the teacher to contrast the best and the worst trajectory of a
// bucket and derives a new instruction from its proposal. Without contrast it only acts on
// a trajectory that fell below the quality threshold.
type RewriteInstruction struct{}

func NewRewriteInstruction() *RewriteInstruction {
	return &RewriteInstruction{}
}

func (s *RewriteInstruction) Name() string {
	return StepRewriteInstruction
}

func (s *RewriteInstruction) Apply(ctx context.Context, prog *program.Predict, traj Trajectory, opts StrategyOptions) (*program.Predict, bool, error) {
	if opts.Teacher == nil {
		return nil, false, nil
	}
	contrast := len(opts.Bucket.Trajectories) > 1 && opts.Bucket.Spread > 0
	if !contrast && traj.Err == nil && traj.Score >= opts.QualityThreshold {
		return nil, false, nil
	}
	worse := traj
	if contrast {
		worse = opts.Bucket.Worst()
	}

	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = evaluate.NewEvaluator()
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NopLogger{}
	}

	inputs := map[string]any{
		"task":                rewriteInstructionTask,
		"current_instruction": prog.Instruction(),
		"example_inputs":      renderJSON(traj.Example.Inputs()),
		"worse_outputs":       renderJSON(worse.Prediction.Outputs),
		"worse_score":         worse.Score,
		"response_schema":     instructionProposalSchema(),
	}
	if contrast {
		inputs["better_outputs"] = renderJSON(traj.Prediction.Outputs)
		inputs["better_score"] = traj.Score
	}
	if worse.Err != nil {
		inputs["worse_error"] = worse.Err.Error()
	}

	outputs, err := evaluator.Execute(ctx, opts.Teacher, inputs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate instruction proposal: %w", err)
	}

	proposal, err := parseProposal(outputs)
	if err != nil {
		return nil, false, err
	}
	logger.Debug("Instruction proposal", "rule", proposal.Rule, "reasoning", proposal.Reasoning)

	instruction := strings.TrimSpace(proposal.Instruction)
	if instruction == "" {
		instruction = strings.TrimSpace(prog.Instruction() + "\n" + strings.TrimSpace(proposal.Rule))
	}
	if instruction == prog.Instruction() {
		return nil, false, nil
	}
	return prog.WithInstruction(StepRewriteInstruction, instruction), true, nil
}

// parseProposal accepts the proposal as a JSON string or object under "proposal", or a bare
// "instruction" or "rule" output.
func parseProposal(outputs map[string]any) (instructionProposal, error) {
	var proposal instructionProposal
	switch raw := outputs["proposal"].(type) {
	case string:
		if err := json.Unmarshal([]byte(program.CleanJSONResponse(raw)), &proposal); err != nil {
			return proposal, types.NewError(types.ErrorTypeExecution, "failed to parse instruction proposal", err)
		}
	case map[string]any:
		data, err := json.Marshal(raw)
		if err != nil {
			return proposal, types.NewError(types.ErrorTypeExecution, "failed to encode instruction proposal", err)
		}
		if err := json.Unmarshal(data, &proposal); err != nil {
			return proposal, types.NewError(types.ErrorTypeExecution, "failed to parse instruction proposal", err)
		}
	default:
		proposal.Instruction, _ = outputs["instruction"].(string)
		proposal.Rule, _ = outputs["rule"].(string)
		proposal.Reasoning, _ = outputs["reasoning"].(string)
	}

	if err := utils.Validate(proposal); err != nil {
		return proposal, types.NewError(types.ErrorTypeExecution, "invalid instruction proposal", err)
	}
	return proposal, nil
}

func renderJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
