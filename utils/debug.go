package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugOptions contains configuration for debug output.
type DebugOptions struct {
	Enabled         bool
	OutputDir       string
	SaveToFile      bool
	LogIterations   bool
	LogTrajectories bool
}

// DebugManager handles debug output for optimization runs: per-iteration snapshots
// and, optionally, the raw trajectories of each iteration.
type DebugManager struct {
	options   DebugOptions
	logger    Logger
	outputDir string
	mu        sync.Mutex
}

// NewDebugManager creates a new debug manager with the given options.
func NewDebugManager(options DebugOptions, logger Logger) *DebugManager {
	if logger == nil {
		logger = NewLogger(LogLevelDebug)
	}
	outputDir := options.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(".", "debug_output")
	}

	if options.SaveToFile && options.Enabled {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			logger.Warn("failed to create debug output directory", "dir", outputDir, "error", err)
		}
	}

	return &DebugManager{
		options:   options,
		logger:    logger,
		outputDir: outputDir,
	}
}

// IsEnabled returns whether debugging is enabled. A nil manager is disabled.
func (dm *DebugManager) IsEnabled() bool {
	return dm != nil && dm.options.Enabled
}

// Log logs a debug message if debugging is enabled.
func (dm *DebugManager) Log(format string, args ...any) {
	if !dm.IsEnabled() {
		return
	}
	message := fmt.Sprintf(format, args...)
	dm.logger.Debug(message)
	if dm.options.SaveToFile {
		dm.appendLine("debug.log", message)
	}
}

// SaveIteration writes a JSON snapshot of one optimization iteration.
func (dm *DebugManager) SaveIteration(runID string, iteration int, data any) {
	if !dm.IsEnabled() || !dm.options.LogIterations {
		return
	}
	dm.saveJSON(fmt.Sprintf("%s_iteration_%03d.json", runID, iteration), data)
}

// SaveTrajectories writes the trajectories of one iteration.
func (dm *DebugManager) SaveTrajectories(runID string, iteration int, data any) {
	if !dm.IsEnabled() || !dm.options.LogTrajectories {
		return
	}
	dm.saveJSON(fmt.Sprintf("%s_trajectories_%03d.json", runID, iteration), data)
}

func (dm *DebugManager) saveJSON(filename string, data any) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		dm.logger.Error("failed to encode debug snapshot", "file", filename, "error", err)
		return
	}
	if !dm.options.SaveToFile {
		dm.logger.Debug("debug snapshot", "name", filename, "data", string(b))
		return
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	path := filepath.Join(dm.outputDir, filename)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		dm.logger.Error("failed to write debug snapshot", "file", path, "error", err)
	}
}

func (dm *DebugManager) appendLine(filename, content string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	path := filepath.Join(dm.outputDir, filename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		dm.logger.Error("failed to open file for debug output", "error", err, "file", path)
		return
	}
	defer file.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(file, "[%s] %s\n", timestamp, content); err != nil {
		dm.logger.Error("failed to write debug output", "error", err, "file", path)
	}
}
