package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teilomillet/teleprompt/types"
)

// ReadExamplesFromFile loads a dataset and marks inputKeys as the input fields of every record.
// Supported formats: .jsonl (one object per line), .json (array of objects) and .yaml/.yml (list of maps).
func ReadExamplesFromFile(filePath string, inputKeys ...string) ([]types.Example, error) {
	if len(inputKeys) == 0 {
		return nil, types.NewError(types.ErrorTypeInvalidConfig, "at least one input key is required", nil)
	}

	var records []map[string]any
	var err error

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".jsonl":
		records, err = readJSONL(filePath)
	case ".json":
		records, err = readDocument(filePath, json.Unmarshal)
	case ".yaml", ".yml":
		records, err = readDocument(filePath, yaml.Unmarshal)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, err
	}

	examples := make([]types.Example, 0, len(records))
	for i, rec := range records {
		ex := types.NewExample(rec, inputKeys...)
		if !ex.HasInputs() {
			return nil, fmt.Errorf("record %d in %s has none of the input keys %v", i, filePath, inputKeys)
		}
		examples = append(examples, ex)
	}
	return examples, nil
}

func readJSONL(filePath string) ([]map[string]any, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error reading JSONL file: %w", err)
	}
	return records, nil
}

func readDocument(filePath string, unmarshal func([]byte, any) error) ([]map[string]any, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	var records []map[string]any
	if err := unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", filePath, err)
	}
	return records, nil
}
