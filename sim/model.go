package sim

// Arm identifies one selectable action in the decision log.
type Arm = string

// Model is the contract every candidate policy must satisfy to be simulated.
//
// Contextual policies receive one context vector per row in Predict and
// PredictExpectations and return one result per row. Context-free policies
// are called with nil contexts and return a single result; the replay engine
// calls them once per test row.
type Model interface {
	// Arms returns the fixed arm set, in a stable order.
	Arms() []Arm

	// IsContextual reports whether predictions require a context vector.
	IsContextual() bool

	// Fit trains the policy from scratch on the given history.
	// contexts is nil for context-free policies.
	Fit(decisions []Arm, rewards []float64, contexts [][]float64) error

	// PartialFit applies one batch of observations incrementally.
	// Only called in online mode, after the batch has been scored.
	PartialFit(decisions []Arm, rewards []float64, contexts [][]float64) error

	// Predict returns the chosen arm for each context row, or a single-element
	// slice when called with nil contexts on a context-free policy.
	Predict(contexts [][]float64) ([]Arm, error)

	// PredictExpectations returns the arm-to-expected-reward map for each
	// context row, or a single-element slice for nil contexts.
	PredictExpectations(contexts [][]float64) ([]map[Arm]float64, error)
}

// NeighborKind distinguishes the recognized neighborhood search variants.
type NeighborKind int

const (
	// NeighborRadius selects all training rows within a fixed distance.
	NeighborRadius NeighborKind = iota
	// NeighborKNearest selects the k closest training rows.
	NeighborKNearest
	// NeighborLSH selects training rows sharing locality-sensitive hash
	// buckets; it does not compute pairwise distances.
	NeighborLSH
)

func (k NeighborKind) String() string {
	switch k {
	case NeighborRadius:
		return "radius"
	case NeighborKNearest:
		return "k-nearest"
	case NeighborLSH:
		return "lsh"
	}
	return "unknown"
}

// NeighborModel is the capability extension for neighbor-based policies.
// The replay engine uses it to collect per-row expectations and, unless the
// run is quick, neighborhood sizes and per-neighborhood arm statistics.
type NeighborModel interface {
	Model

	// NeighborKind declares which neighborhood variant this policy uses.
	NeighborKind() NeighborKind

	// RowExpectations returns the recorded arm expectations for test rows
	// [start, stop), in prediction order.
	RowExpectations(start, stop int) []map[Arm]float64

	// NeighborhoodSizes returns the neighborhood size observed for each test
	// row predicted so far. Empty when the run is quick.
	NeighborhoodSizes() []int

	// NeighborhoodArmStats returns the per-arm descriptive statistics of each
	// test row's neighborhood. Empty when the run is quick.
	NeighborhoodArmStats() []map[Arm]ArmStats
}

// DistanceSharer is implemented by neighbor policies whose predictions are
// driven by pairwise context-to-history distances (radius and k-nearest).
// It lets the replay engine compute distances once per chunk and inject them
// into every subsequent policy on the same chunk that uses the same metric.
type DistanceSharer interface {
	NeighborModel

	// Metric returns the distance metric this policy predicts with. Cached
	// distances are only injected between policies on the same metric.
	Metric() Metric

	// CalculateDistances computes the distances from each context row to the
	// full training history, retains them for the next Predict, and returns
	// them for caching.
	CalculateDistances(contexts [][]float64) Distances

	// SetDistances injects previously computed distances to be used by the
	// next Predict instead of recomputing them.
	SetDistances(d Distances)
}

// Parallelized is implemented by policies that run an internal worker pool
// during fit/predict. The simulator folds the maximum effective pool size
// across all policies into the replay chunk-size heuristic.
type Parallelized interface {
	// Jobs returns the configured parallelism; negative values count back
	// from the number of CPUs as in effectiveJobs.
	Jobs() int
}
