package sim

// Defaults for the replay chunk-size heuristic. The shape of the heuristic
// (bytes per distance × test rows × train rows, compared against a GB
// threshold) is fixed; the constants are tunable via SimulatorConfig.
const (
	DefaultBytesPerDistance = 8.0
	DefaultMaxDistanceGB    = 1.0
)

// SimulatorConfig groups the run parameters for a Simulator.
type SimulatorConfig struct {
	TestSize  float64 // fraction of rows held out for replay (must be in (0, 1))
	Ordered   bool    // chronological split instead of a seeded shuffle
	BatchSize int     // 0 = offline single pass; > 0 = online batch size (must not exceed the test set)
	Seed      int64   // master seed for the split shuffle and derived streams
	Quick     bool    // skip neighborhood bookkeeping for speed

	// Evaluator scores predictions per checkpoint. Nil selects DefaultEvaluator.
	Evaluator Evaluator

	// Chunk heuristic knobs; zero values take the package defaults.
	BytesPerDistance float64 // estimated bytes per stored distance value
	MaxDistanceGB    float64 // footprint threshold above which replay is chunked
}

// bytesPerDistance returns the configured per-distance cost or the default.
func (c SimulatorConfig) bytesPerDistance() float64 {
	if c.BytesPerDistance > 0 {
		return c.BytesPerDistance
	}
	return DefaultBytesPerDistance
}

// maxDistanceGB returns the configured footprint threshold or the default.
func (c SimulatorConfig) maxDistanceGB() float64 {
	if c.MaxDistanceGB > 0 {
		return c.MaxDistanceGB
	}
	return DefaultMaxDistanceGB
}

// evaluator returns the configured evaluation function or the default.
func (c SimulatorConfig) evaluator() Evaluator {
	if c.Evaluator != nil {
		return c.Evaluator
	}
	return DefaultEvaluator
}
