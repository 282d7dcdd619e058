package optimizer

// Default SIMBA and bootstrap settings. They match config.NewConfig.
const (
	DefaultQualityThreshold    = 0.5
	DefaultMaxDemos            = 16
	DefaultNumCandidates       = 6
	DefaultMiniBatchSize       = 32
	DefaultMaxIterations       = 8
	DefaultConvergencePatience = 3
	DefaultTemperature         = 1.0
	DefaultAcceptSlack         = 0.0
	DefaultPoolSize            = 3
)

// DefaultExplorationSamples is how many pool members besides the current best are re-run on
// each mini-batch to produce contrasting trajectories.
const DefaultExplorationSamples = 2

// Optimizer names used in OptimizedProgram and the teleprompter registry.
const (
	NameSIMBA            = "simba"
	NameBootstrapFewShot = "bootstrap_fewshot"
)

// Lineage steps recorded on derived programs.
const (
	StepBootstrap          = "bootstrap"
	StepAppendDemo         = "append_demo"
	StepRewriteInstruction = "rewrite_instruction"
)

// Convergence reasons reported on OptimizedProgram.
const (
	ReasonMaxIterations = "max iterations reached"
	ReasonDeadline      = "deadline exceeded"
	ReasonCancelled     = "context cancelled"
)
