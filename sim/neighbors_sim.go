package sim

// Simulation-instrumented neighbor policy variants. The Simulator wraps each
// recognized neighbor policy before training so the replay engine can read
// per-row arm expectations and, outside quick runs, neighborhood sizes and
// per-neighborhood arm statistics. Wrapping never changes what the policy
// predicts.

// distanceInner is satisfied by neighbor policies that expose the
// distance-injection hooks (radius, k-nearest).
type distanceInner interface {
	neighborPolicy
	Metric() Metric
	CalculateDistances(contexts [][]float64) Distances
	SetDistances(d Distances)
}

// instrumentNeighbors wraps a recognized neighbor policy in its
// simulation-instrumented variant, selected by declared capability rather
// than concrete type. Non-neighbor policies pass through unchanged.
func instrumentNeighbors(m Model, quick bool) Model {
	np, ok := m.(neighborPolicy)
	if !ok {
		return m
	}
	if di, ok := np.(distanceInner); ok {
		return &simDistanceNeighbors{
			simNeighbors: simNeighbors{inner: np, quick: quick},
			dist:         di,
		}
	}
	return &simNeighbors{inner: np, quick: quick}
}

// simNeighbors decorates a neighbor policy with per-row bookkeeping.
type simNeighbors struct {
	inner neighborPolicy
	quick bool

	rowExpectations []map[Arm]float64
	sizes           []int
	nhoodStats      []map[Arm]ArmStats
}

func (s *simNeighbors) Arms() []Arm                { return s.inner.Arms() }
func (s *simNeighbors) IsContextual() bool         { return true }
func (s *simNeighbors) NeighborKind() NeighborKind { return s.inner.NeighborKind() }

func (s *simNeighbors) Fit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	return s.inner.Fit(decisions, rewards, contexts)
}

func (s *simNeighbors) PartialFit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	return s.inner.PartialFit(decisions, rewards, contexts)
}

func (s *simNeighbors) Predict(contexts [][]float64) ([]Arm, error) {
	rows, err := s.inner.predictRows(contexts)
	if err != nil {
		return nil, err
	}
	decisions, rewards := s.inner.trainingHistory()
	for _, r := range rows {
		s.rowExpectations = append(s.rowExpectations, r.expectations)
		if s.quick {
			continue
		}
		s.sizes = append(s.sizes, len(r.neighbors))
		s.nhoodStats = append(s.nhoodStats, neighborhoodArmStats(decisions, rewards, r.neighbors))
	}
	return predictionsOf(rows), nil
}

func (s *simNeighbors) PredictExpectations(contexts [][]float64) ([]map[Arm]float64, error) {
	return s.inner.PredictExpectations(contexts)
}

func (s *simNeighbors) RowExpectations(start, stop int) []map[Arm]float64 {
	stop = min(stop, len(s.rowExpectations))
	if start >= stop {
		return nil
	}
	return append([]map[Arm]float64(nil), s.rowExpectations[start:stop]...)
}

func (s *simNeighbors) NeighborhoodSizes() []int {
	return append([]int(nil), s.sizes...)
}

func (s *simNeighbors) NeighborhoodArmStats() []map[Arm]ArmStats {
	return append([]map[Arm]ArmStats(nil), s.nhoodStats...)
}

// simDistanceNeighbors additionally forwards the distance-sharing hooks so
// the chunk-level DistanceCache can inject shared distances.
type simDistanceNeighbors struct {
	simNeighbors
	dist distanceInner
}

func (s *simDistanceNeighbors) Metric() Metric {
	return s.dist.Metric()
}

func (s *simDistanceNeighbors) CalculateDistances(contexts [][]float64) Distances {
	return s.dist.CalculateDistances(contexts)
}

func (s *simDistanceNeighbors) SetDistances(d Distances) {
	s.dist.SetDistances(d)
}

// neighborhoodArmStats computes descriptive statistics per arm over one
// neighborhood. Arms absent from the neighborhood are omitted, so evaluators
// can distinguish "no neighborhood data" from a zero-reward arm.
func neighborhoodArmStats(decisions []Arm, rewards []float64, neighbors []int) map[Arm]ArmStats {
	armToRewards := make(map[Arm][]float64)
	for _, i := range neighbors {
		armToRewards[decisions[i]] = append(armToRewards[decisions[i]], rewards[i])
	}
	out := make(map[Arm]ArmStats, len(armToRewards))
	for arm, selected := range armToRewards {
		out[arm] = rewardStats(selected)
	}
	return out
}
