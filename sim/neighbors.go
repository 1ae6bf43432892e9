package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// rowResult is the per-test-row outcome of a neighborhood prediction:
// the chosen arm, the learner's arm expectations over the neighborhood, and
// the indices of the neighborhood rows in the training history.
type rowResult struct {
	arm          Arm
	expectations map[Arm]float64
	neighbors    []int
}

// neighborPolicy is the internal contract between the concrete neighbor
// policies and the simulation-instrumented wrappers in neighbors_sim.go.
type neighborPolicy interface {
	Model
	NeighborKind() NeighborKind
	predictRows(contexts [][]float64) ([]rowResult, error)
	trainingHistory() ([]Arm, []float64)
}

// neighborsBase carries the training history and the per-neighborhood
// learner machinery shared by all neighbor policies.
type neighborsBase struct {
	arms []Arm
	lp   LearningPolicy
	jobs int
	seed int64

	// rowCounter numbers test rows across the whole run so parallel row
	// workers draw from deterministic, order-independent streams.
	rowCounter int

	decisions []Arm
	rewards   []float64
	contexts  [][]float64
}

func (n *neighborsBase) Arms() []Arm        { return n.arms }
func (n *neighborsBase) IsContextual() bool { return true }

func (n *neighborsBase) trainingHistory() ([]Arm, []float64) {
	return n.decisions, n.rewards
}

// Jobs implements Parallelized.
func (n *neighborsBase) Jobs() int { return n.jobs }

func (n *neighborsBase) fit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	if contexts == nil {
		return fmt.Errorf("neighbor policy requires contexts")
	}
	n.decisions = append([]Arm(nil), decisions...)
	n.rewards = append([]float64(nil), rewards...)
	n.contexts = append([][]float64(nil), contexts...)
	return nil
}

func (n *neighborsBase) partialFit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	if contexts == nil {
		return fmt.Errorf("neighbor policy requires contexts")
	}
	n.decisions = append(n.decisions, decisions...)
	n.rewards = append(n.rewards, rewards...)
	n.contexts = append(n.contexts, contexts...)
	return nil
}

// evaluateRows fits a fresh learner on each row's neighborhood and chooses an
// arm, fanning rows out over the policy's worker pool. pick returns the
// training-history indices forming row i's neighborhood; an empty
// neighborhood falls back to a uniformly random arm.
func (n *neighborsBase) evaluateRows(numRows int, pick func(i int) []int) []rowResult {
	seeds := make([]int64, numRows)
	for i := range seeds {
		seeds[i] = deriveRowSeed(n.seed, n.rowCounter)
		n.rowCounter++
	}

	results := make([]rowResult, numRows)
	var g errgroup.Group
	g.SetLimit(effectiveJobs(numRows, n.jobs))
	for i := 0; i < numRows; i++ {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			idx := pick(i)
			if len(idx) == 0 {
				results[i] = rowResult{
					arm:          n.arms[rng.Intn(len(n.arms))],
					expectations: make(map[Arm]float64, len(n.arms)),
				}
				return nil
			}
			learner := n.lp()
			learner.Init(n.arms)
			decisions := make([]Arm, len(idx))
			rewards := make([]float64, len(idx))
			for j, k := range idx {
				decisions[j] = n.decisions[k]
				rewards[j] = n.rewards[k]
			}
			learner.Learn(decisions, rewards)
			results[i] = rowResult{
				arm:          learner.Choose(rng),
				expectations: learner.Expectations(),
				neighbors:    idx,
			}
			return nil
		})
	}
	// row workers never fail; Wait only joins them
	_ = g.Wait()
	return results
}

// predictionsOf projects the chosen arms out of row results.
func predictionsOf(rows []rowResult) []Arm {
	out := make([]Arm, len(rows))
	for i, r := range rows {
		out[i] = r.arm
	}
	return out
}

// expectationsOf projects the arm expectations out of row results.
func expectationsOf(rows []rowResult) []map[Arm]float64 {
	out := make([]map[Arm]float64, len(rows))
	for i, r := range rows {
		out[i] = r.expectations
	}
	return out
}

// distanceNeighbors extends neighborsBase with pairwise distance machinery
// and the distance-injection hooks used for cross-policy sharing.
type distanceNeighbors struct {
	neighborsBase
	metric  Metric
	pending Distances
}

// Metric returns the distance metric the policy predicts with.
func (d *distanceNeighbors) Metric() Metric {
	return d.metric
}

// CalculateDistances computes chunk-to-history distances, retains them for
// the next Predict, and returns them for caching.
func (d *distanceNeighbors) CalculateDistances(contexts [][]float64) Distances {
	d.pending = computeDistances(contexts, d.contexts, d.metric, effectiveJobs(len(contexts), d.jobs))
	return d.pending
}

// SetDistances injects distances computed by another policy on the same
// chunk and training history.
func (d *distanceNeighbors) SetDistances(dist Distances) {
	d.pending = dist
}

// takeDistances consumes injected distances or computes them on demand.
func (d *distanceNeighbors) takeDistances(contexts [][]float64) Distances {
	if d.pending != nil {
		dist := d.pending
		d.pending = nil
		return dist
	}
	return computeDistances(contexts, d.contexts, d.metric, effectiveJobs(len(contexts), d.jobs))
}

// === Radius ===

// Radius is a contextual policy that applies its learning policy to all
// training rows within a fixed distance of each test context.
type Radius struct {
	distanceNeighbors
	radius float64
}

// NewRadius creates a radius neighborhood policy.
func NewRadius(arms []Arm, lp LearningPolicy, radius float64, metric Metric, jobs int, seed int64) *Radius {
	return &Radius{
		distanceNeighbors: distanceNeighbors{
			neighborsBase: neighborsBase{arms: append([]Arm(nil), arms...), lp: lp, jobs: jobs, seed: seed},
			metric:        metric,
		},
		radius: radius,
	}
}

func (r *Radius) NeighborKind() NeighborKind { return NeighborRadius }

func (r *Radius) Fit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	return r.fit(decisions, rewards, contexts)
}

func (r *Radius) PartialFit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	return r.partialFit(decisions, rewards, contexts)
}

func (r *Radius) predictRows(contexts [][]float64) ([]rowResult, error) {
	dist := r.takeDistances(contexts)
	return r.evaluateRows(len(contexts), func(i int) []int {
		var idx []int
		for j, d := range dist[i] {
			if d <= r.radius {
				idx = append(idx, j)
			}
		}
		return idx
	}), nil
}

func (r *Radius) Predict(contexts [][]float64) ([]Arm, error) {
	rows, err := r.predictRows(contexts)
	if err != nil {
		return nil, err
	}
	return predictionsOf(rows), nil
}

func (r *Radius) PredictExpectations(contexts [][]float64) ([]map[Arm]float64, error) {
	rows, err := r.predictRows(contexts)
	if err != nil {
		return nil, err
	}
	return expectationsOf(rows), nil
}

// === KNearest ===

// KNearest is a contextual policy that applies its learning policy to the k
// closest training rows for each test context.
type KNearest struct {
	distanceNeighbors
	k int
}

// NewKNearest creates a k-nearest neighborhood policy.
func NewKNearest(arms []Arm, lp LearningPolicy, k int, metric Metric, jobs int, seed int64) *KNearest {
	return &KNearest{
		distanceNeighbors: distanceNeighbors{
			neighborsBase: neighborsBase{arms: append([]Arm(nil), arms...), lp: lp, jobs: jobs, seed: seed},
			metric:        metric,
		},
		k: k,
	}
}

func (k *KNearest) NeighborKind() NeighborKind { return NeighborKNearest }

func (k *KNearest) Fit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	return k.fit(decisions, rewards, contexts)
}

func (k *KNearest) PartialFit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	return k.partialFit(decisions, rewards, contexts)
}

func (k *KNearest) predictRows(contexts [][]float64) ([]rowResult, error) {
	dist := k.takeDistances(contexts)
	return k.evaluateRows(len(contexts), func(i int) []int {
		idx := make([]int, len(dist[i]))
		for j := range idx {
			idx[j] = j
		}
		// ties broken by training-history order
		sort.SliceStable(idx, func(a, b int) bool { return dist[i][idx[a]] < dist[i][idx[b]] })
		return idx[:min(k.k, len(idx))]
	}), nil
}

func (k *KNearest) Predict(contexts [][]float64) ([]Arm, error) {
	rows, err := k.predictRows(contexts)
	if err != nil {
		return nil, err
	}
	return predictionsOf(rows), nil
}

func (k *KNearest) PredictExpectations(contexts [][]float64) ([]map[Arm]float64, error) {
	rows, err := k.predictRows(contexts)
	if err != nil {
		return nil, err
	}
	return expectationsOf(rows), nil
}

// === LSH ===

// lshTable is one random-hyperplane hash table over the training contexts.
type lshTable struct {
	planes  [][]float64
	buckets map[uint64][]int
}

func (t *lshTable) hash(context []float64) uint64 {
	var key uint64
	for b, plane := range t.planes {
		if floats.Dot(plane, context) >= 0 {
			key |= 1 << uint(b)
		}
	}
	return key
}

// LSH is a contextual policy that approximates nearest-neighbor search with
// locality-sensitive hashing: each test context's neighborhood is the union
// of its hash buckets across tables. It never computes pairwise distances,
// so it does not participate in chunk-level distance sharing.
type LSH struct {
	neighborsBase
	nDims   int
	nTables int
	tables  []lshTable
}

// NewLSH creates an approximate-hash neighborhood policy with nTables random
// hyperplane tables of nDims bits each.
func NewLSH(arms []Arm, lp LearningPolicy, nDims, nTables int, jobs int, seed int64) *LSH {
	return &LSH{
		neighborsBase: neighborsBase{arms: append([]Arm(nil), arms...), lp: lp, jobs: jobs, seed: seed},
		nDims:         nDims,
		nTables:       nTables,
	}
}

func (l *LSH) NeighborKind() NeighborKind { return NeighborLSH }

func (l *LSH) Fit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	if err := l.fit(decisions, rewards, contexts); err != nil {
		return err
	}
	l.buildTables()
	for i, c := range l.contexts {
		l.insert(i, c)
	}
	return nil
}

func (l *LSH) PartialFit(decisions []Arm, rewards []float64, contexts [][]float64) error {
	offset := len(l.contexts)
	if err := l.partialFit(decisions, rewards, contexts); err != nil {
		return err
	}
	for i, c := range contexts {
		l.insert(offset+i, c)
	}
	return nil
}

// buildTables draws the hyperplanes from streams derived from the policy
// seed, so refitting reproduces the same tables.
func (l *LSH) buildTables() {
	width := len(l.contexts[0])
	l.tables = make([]lshTable, l.nTables)
	for t := range l.tables {
		rng := rand.New(rand.NewSource(l.seed ^ fnv1a64(fmt.Sprintf("lsh_table_%d", t))))
		planes := make([][]float64, l.nDims)
		for b := range planes {
			plane := make([]float64, width)
			for f := range plane {
				plane[f] = rng.NormFloat64()
			}
			planes[b] = plane
		}
		l.tables[t] = lshTable{planes: planes, buckets: make(map[uint64][]int)}
	}
}

func (l *LSH) insert(index int, context []float64) {
	for t := range l.tables {
		key := l.tables[t].hash(context)
		l.tables[t].buckets[key] = append(l.tables[t].buckets[key], index)
	}
}

func (l *LSH) predictRows(contexts [][]float64) ([]rowResult, error) {
	return l.evaluateRows(len(contexts), func(i int) []int {
		seen := make(map[int]struct{})
		for t := range l.tables {
			for _, j := range l.tables[t].buckets[l.tables[t].hash(contexts[i])] {
				seen[j] = struct{}{}
			}
		}
		idx := make([]int, 0, len(seen))
		for j := range seen {
			idx = append(idx, j)
		}
		sort.Ints(idx)
		return idx
	}), nil
}

func (l *LSH) Predict(contexts [][]float64) ([]Arm, error) {
	rows, err := l.predictRows(contexts)
	if err != nil {
		return nil, err
	}
	return predictionsOf(rows), nil
}

func (l *LSH) PredictExpectations(contexts [][]float64) ([]map[Arm]float64, error) {
	rows, err := l.predictRows(contexts)
	if err != nil {
		return nil, err
	}
	return expectationsOf(rows), nil
}
