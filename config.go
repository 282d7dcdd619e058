// This file re-exports configuration types and functions from the config package so callers
// can configure the engine and the optimizers from the root package alone.

package teleprompt

import (
	"github.com/teilomillet/teleprompt/config"
	"github.com/teilomillet/teleprompt/utils"
)

type (
	// Config holds every tunable of the evaluation engine, the bootstrap selector and SIMBA.
	//
	// Example usage:
	//   cfg := NewConfig()
	//   ApplyOptions(cfg, SetMaxConcurrency(4), SetMaxIterations(12))
	Config = config.Config

	// ConfigOption modifies a Config.
	ConfigOption = config.ConfigOption

	// LogLevel defines the verbosity of logging output, LogLevelOff through LogLevelDebug.
	LogLevel = utils.LogLevel
)

var (
	// LoadConfig reads TELEPROMPT_* environment variables on top of the defaults.
	LoadConfig = config.LoadConfig

	// LoadConfigFile reads a YAML file on top of the defaults.
	LoadConfigFile = config.LoadFile

	NewConfig    = config.NewConfig
	ApplyOptions = config.ApplyOptions
)

// Re-export ConfigOption functions.
var (
	// Evaluation engine
	SetMaxConcurrency    = config.SetMaxConcurrency    // Bounds in-flight units; 0 means GOMAXPROCS
	SetTimeoutPerExample = config.SetTimeoutPerExample // Deadline of each program and metric call
	SetFailFast          = config.SetFailFast          // Abort a batch on the first unit error
	SetRateLimit         = config.SetRateLimit         // Program calls per second and burst

	// Bootstrap selector
	SetQualityThreshold = config.SetQualityThreshold
	SetMaxDemos         = config.SetMaxDemos

	// SIMBA
	SetNumCandidates       = config.SetNumCandidates
	SetMiniBatchSize       = config.SetMiniBatchSize
	SetMaxIterations       = config.SetMaxIterations
	SetConvergencePatience = config.SetConvergencePatience
	SetTemperature         = config.SetTemperature
	SetAcceptSlack         = config.SetAcceptSlack
	SetPoolSize            = config.SetPoolSize
	SetDeadline            = config.SetDeadline
	SetSeed                = config.SetSeed
	SetBootstrap           = config.SetBootstrap

	// Prompting
	SetTokenBudget = config.SetTokenBudget // Prompt token cap and tokenizer model

	// Runtime
	SetLogLevel = config.SetLogLevel
	SetDebugDir = config.SetDebugDir
)

const (
	LogLevelOff   = utils.LogLevelOff
	LogLevelError = utils.LogLevelError
	LogLevelWarn  = utils.LogLevelWarn
	LogLevelInfo  = utils.LogLevelInfo
	LogLevelDebug = utils.LogLevelDebug
)
