package program

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"text/template"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teilomillet/teleprompt/config"
	"github.com/teilomillet/teleprompt/types"
)

// Client is the text-completion collaborator an LM-backed program calls.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

// NewTiktokenCounter returns a counter using the encoding of model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTiktokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get default encoding: %w", err)
		}
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// LMOptionsFromConfig maps the prompting section of cfg to LMForward options. A token budget
// loads the tokenizer of cfg.TokenizerModel, which fails when its encoding cannot be loaded.
func LMOptionsFromConfig(cfg *config.Config) ([]LMOption, error) {
	if cfg.TokenBudget <= 0 {
		return nil, nil
	}
	counter, err := NewTiktokenCounter(cfg.TokenizerModel)
	if err != nil {
		return nil, err
	}
	return []LMOption{WithTokenBudget(cfg.TokenBudget, counter)}, nil
}

const defaultPromptTemplate = `{{- if .Instruction }}{{ .Instruction }}

{{ end -}}
{{- range $i, $demo := .Demos }}Example {{ inc $i }}:
{{ fields $demo }}
{{ end -}}
Input:
{{ fields .Inputs }}
Respond with a JSON object containing the keys: {{ join .OutputKeys ", " }}.`

type lmForward struct {
	client     Client
	tmpl       *template.Template
	outputKeys []string
	budget     int
	counter    TokenCounter
}

// LMOption configures LMForward.
type LMOption func(*lmForward)

// WithOutputKeys names the fields the model is asked to produce. With a single key, a response
// that is not a JSON object is mapped to that key verbatim.
func WithOutputKeys(keys ...string) LMOption {
	return func(f *lmForward) {
		f.outputKeys = slices.Clone(keys)
	}
}

// WithTokenBudget drops the oldest demonstrations until the rendered prompt fits in budget tokens.
func WithTokenBudget(budget int, counter TokenCounter) LMOption {
	return func(f *lmForward) {
		f.budget = budget
		f.counter = counter
	}
}

// WithPromptTemplate replaces the default prompt layout. The template sees .Instruction, .Demos
// (a list of field maps), .Inputs and .OutputKeys, plus the helpers fields, join and inc.
func WithPromptTemplate(text string) LMOption {
	return func(f *lmForward) {
		f.tmpl = template.Must(newTemplate().Parse(text))
	}
}

func newTemplate() *template.Template {
	return template.New("prompt").Funcs(template.FuncMap{
		"fields": renderFields,
		"join":   strings.Join,
		"inc":    func(i int) int { return i + 1 },
	})
}

// LMForward adapts a text-completion client to a Forward.
func LMForward(client Client, opts ...LMOption) Forward {
	f := &lmForward{
		client:     client,
		tmpl:       template.Must(newTemplate().Parse(defaultPromptTemplate)),
		outputKeys: []string{"answer"},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f.forward
}

func (f *lmForward) forward(ctx context.Context, call Call) (map[string]any, error) {
	prompt, err := f.render(call)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Generate(ctx, prompt)
	if err != nil {
		return nil, types.NewError(types.ErrorTypeExecution, "generation failed", err)
	}
	return f.parse(response)
}

// render builds the prompt, shedding demos from the front while it exceeds the token budget.
func (f *lmForward) render(call Call) (string, error) {
	demos := call.Demos
	for {
		prompt, err := f.execute(call.Instruction, demos, call.Inputs)
		if err != nil {
			return "", err
		}
		if f.budget <= 0 || f.counter == nil || len(demos) == 0 || f.counter(prompt) <= f.budget {
			return prompt, nil
		}
		demos = demos[1:]
	}
}

func (f *lmForward) execute(instruction string, demos []types.Example, inputs map[string]any) (string, error) {
	demoFields := make([]map[string]any, len(demos))
	for i, d := range demos {
		demoFields[i] = d.Data()
	}

	var buf bytes.Buffer
	err := f.tmpl.Execute(&buf, map[string]any{
		"Instruction": instruction,
		"Demos":       demoFields,
		"Inputs":      inputs,
		"OutputKeys":  f.outputKeys,
	})
	if err != nil {
		return "", types.NewError(types.ErrorTypeExecution, "failed to render prompt", err)
	}
	return buf.String(), nil
}

func (f *lmForward) parse(response string) (map[string]any, error) {
	cleaned := CleanJSONResponse(response)
	var outputs map[string]any
	if err := json.Unmarshal([]byte(cleaned), &outputs); err == nil {
		return outputs, nil
	}
	if len(f.outputKeys) == 1 {
		return map[string]any{f.outputKeys[0]: strings.TrimSpace(response)}, nil
	}
	return nil, types.NewError(types.ErrorTypeExecution, "response is not a JSON object", nil)
}

// CleanJSONResponse strips markdown fences and any text around the outermost JSON object.
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "{") {
		return response
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end != -1 && end > start {
		return response[start : end+1]
	}
	return response
}

func renderFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, fields[k])
	}
	return strings.TrimSuffix(b.String(), "\n")
}
