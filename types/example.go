// Package types contains the data model shared by the evaluation engine and the optimizers.
// It sits at the bottom of the import graph so every other package can depend on it.
package types

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"strings"
)

// Example is an immutable key/value record. A subset of its keys is marked as inputs;
// every other key is an expected output (a label).
//
// Examples are values: all accessors return copies and every "modification" returns a new Example.
type Example struct {
	data   map[string]any
	inputs []string // sorted, always a subset of the keys of data
}

// NewExample creates an Example from raw data. Input keys that are not present in data are ignored,
// which keeps the input set a subset of the key set.
func NewExample(data map[string]any, inputKeys ...string) Example {
	copied := make(map[string]any, len(data))
	maps.Copy(copied, data)

	inputs := make([]string, 0, len(inputKeys))
	for _, k := range inputKeys {
		if _, ok := copied[k]; ok && !slices.Contains(inputs, k) {
			inputs = append(inputs, k)
		}
	}
	slices.Sort(inputs)

	return Example{data: copied, inputs: inputs}
}

// Get returns the value stored under key.
func (e Example) Get(key string) (any, bool) {
	v, ok := e.data[key]
	return v, ok
}

// Len returns the number of fields.
func (e Example) Len() int {
	return len(e.data)
}

// Keys returns all field names in sorted order.
func (e Example) Keys() []string {
	return slices.Sorted(maps.Keys(e.data))
}

// InputKeys returns the names of the input fields in sorted order.
func (e Example) InputKeys() []string {
	return slices.Clone(e.inputs)
}

// LabelKeys returns the names of the expected-output fields in sorted order.
func (e Example) LabelKeys() []string {
	labels := make([]string, 0, len(e.data)-len(e.inputs))
	for _, k := range e.Keys() {
		if !e.IsInput(k) {
			labels = append(labels, k)
		}
	}
	return labels
}

// IsInput reports whether key is marked as an input.
func (e Example) IsInput(key string) bool {
	_, found := slices.BinarySearch(e.inputs, key)
	return found
}

// HasInputs reports whether the example can be executed, i.e. it has at least one input field.
func (e Example) HasInputs() bool {
	return len(e.inputs) > 0
}

// Inputs returns a copy of the input fields.
func (e Example) Inputs() map[string]any {
	out := make(map[string]any, len(e.inputs))
	for _, k := range e.inputs {
		out[k] = e.data[k]
	}
	return out
}

// Labels returns a copy of the expected-output fields.
func (e Example) Labels() map[string]any {
	out := make(map[string]any, len(e.data)-len(e.inputs))
	for k, v := range e.data {
		if !e.IsInput(k) {
			out[k] = v
		}
	}
	return out
}

// Data returns a copy of all fields.
func (e Example) Data() map[string]any {
	return maps.Clone(e.data)
}

// WithInputs returns a new Example with the same data and a different input key set.
func (e Example) WithInputs(keys ...string) Example {
	return NewExample(e.data, keys...)
}

// WithoutLabels returns a new Example holding only the input fields.
func (e Example) WithoutLabels() Example {
	return NewExample(e.Inputs(), e.inputs...)
}

// WithOutputs returns a new Example that keeps the inputs of e and replaces every label with outputs.
// Output keys that collide with input keys are dropped so the inputs are never overwritten.
func (e Example) WithOutputs(outputs map[string]any) Example {
	data := e.Inputs()
	for k, v := range outputs {
		if !e.IsInput(k) {
			data[k] = v
		}
	}
	return NewExample(data, e.inputs...)
}

// Equal reports whether two examples hold the same content and the same input key set.
func (e Example) Equal(other Example) bool {
	if !slices.Equal(e.inputs, other.inputs) {
		return false
	}
	return e.canonical() == other.canonical()
}

// Hash returns a content hash that is consistent with Equal.
func (e Example) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(e.inputs, "\x00")))
	_, _ = h.Write([]byte{0xff})
	_, _ = h.Write([]byte(e.canonical()))
	return h.Sum64()
}

// canonical renders the data deterministically; encoding/json sorts map keys.
func (e Example) canonical() string {
	if len(e.data) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.data)
	if err != nil {
		return fmt.Sprintf("%v", e.data)
	}
	return string(b)
}

func (e Example) String() string {
	return fmt.Sprintf("Example(inputs=%v, data=%s)", e.inputs, e.canonical())
}

// MarshalJSON encodes the example as {"data": {...}, "inputs": [...]}.
func (e Example) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Data   map[string]any `json:"data"`
		Inputs []string       `json:"inputs"`
	}{Data: e.data, Inputs: e.inputs})
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (e *Example) UnmarshalJSON(b []byte) error {
	var raw struct {
		Data   map[string]any `json:"data"`
		Inputs []string       `json:"inputs"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = NewExample(raw.Data, raw.Inputs...)
	return nil
}
