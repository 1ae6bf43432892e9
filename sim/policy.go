package sim

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
)

// Learner is the context-free arm-selection rule. It is used standalone by
// ContextFree policies and per-neighborhood by the neighbor policies, which
// fit a fresh Learner on each test row's neighborhood.
type Learner interface {
	// Init resets the learner to an untrained state over the arm set.
	Init(arms []Arm)
	// Learn folds a batch of observations into the learner's reward estimates.
	Learn(decisions []Arm, rewards []float64)
	// Choose selects an arm given the current estimates.
	Choose(rng *rand.Rand) Arm
	// Expectations returns the current expected reward per arm.
	Expectations() map[Arm]float64
}

// LearningPolicy constructs a fresh Learner. Neighbor policies call it once
// per test row, so implementations must be cheap to build.
type LearningPolicy func() Learner

// Greedy always exploits the arm with the highest mean observed reward.
func Greedy() LearningPolicy {
	return func() Learner { return &greedyLearner{} }
}

// EpsilonGreedy explores a uniformly random arm with probability epsilon and
// exploits the best mean reward otherwise.
func EpsilonGreedy(epsilon float64) LearningPolicy {
	return func() Learner { return &epsilonGreedyLearner{epsilon: epsilon} }
}

// Softmax samples arms from the Boltzmann distribution of mean rewards with
// temperature tau.
func Softmax(tau float64) LearningPolicy {
	return func() Learner { return &softmaxLearner{tau: tau} }
}

// greedyLearner tracks per-arm reward sums and counts.
type greedyLearner struct {
	arms   []Arm
	counts map[Arm]int
	totals map[Arm]float64
}

func (g *greedyLearner) Init(arms []Arm) {
	g.arms = arms
	g.counts = make(map[Arm]int, len(arms))
	g.totals = make(map[Arm]float64, len(arms))
}

func (g *greedyLearner) Learn(decisions []Arm, rewards []float64) {
	for i, d := range decisions {
		g.counts[d]++
		g.totals[d] += rewards[i]
	}
}

// mean returns the mean observed reward for the arm, zero when unseen.
func (g *greedyLearner) mean(arm Arm) float64 {
	if c := g.counts[arm]; c > 0 {
		return g.totals[arm] / float64(c)
	}
	return 0
}

func (g *greedyLearner) Choose(_ *rand.Rand) Arm {
	best := g.arms[0]
	bestMean := g.mean(best)
	for _, arm := range g.arms[1:] {
		if m := g.mean(arm); m > bestMean {
			best, bestMean = arm, m
		}
	}
	return best
}

func (g *greedyLearner) Expectations() map[Arm]float64 {
	out := make(map[Arm]float64, len(g.arms))
	for _, arm := range g.arms {
		out[arm] = g.mean(arm)
	}
	return out
}

type epsilonGreedyLearner struct {
	greedyLearner
	epsilon float64
}

func (e *epsilonGreedyLearner) Choose(rng *rand.Rand) Arm {
	if rng.Float64() < e.epsilon {
		return e.arms[rng.Intn(len(e.arms))]
	}
	return e.greedyLearner.Choose(rng)
}

type softmaxLearner struct {
	greedyLearner
	tau float64
}

func (s *softmaxLearner) Choose(rng *rand.Rand) Arm {
	tau := s.tau
	if tau <= 0 {
		tau = 1
	}
	// subtract the max scaled mean before exponentiating for stability
	scaled := make([]float64, len(s.arms))
	maxScaled := math.Inf(-1)
	for i, arm := range s.arms {
		scaled[i] = s.mean(arm) / tau
		maxScaled = math.Max(maxScaled, scaled[i])
	}
	var total float64
	for i := range scaled {
		scaled[i] = math.Exp(scaled[i] - maxScaled)
		total += scaled[i]
	}
	draw := rng.Float64() * total
	for i, w := range scaled {
		draw -= w
		if draw <= 0 {
			return s.arms[i]
		}
	}
	return s.arms[len(s.arms)-1]
}

// ContextFree adapts a Learner to the Model contract. Predict takes nil
// contexts and returns a single-element slice; the replay engine calls it
// once per test row.
type ContextFree struct {
	arms    []Arm
	learner Learner
	rng     *rand.Rand
}

// NewContextFree creates a context-free policy over the arm set with an
// isolated random stream derived from seed.
func NewContextFree(arms []Arm, lp LearningPolicy, seed int64) *ContextFree {
	learner := lp()
	learner.Init(append([]Arm(nil), arms...))
	return &ContextFree{
		arms:    append([]Arm(nil), arms...),
		learner: learner,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (c *ContextFree) Arms() []Arm        { return c.arms }
func (c *ContextFree) IsContextual() bool { return false }

func (c *ContextFree) Fit(decisions []Arm, rewards []float64, _ [][]float64) error {
	c.learner.Init(c.arms)
	c.learner.Learn(decisions, rewards)
	return nil
}

func (c *ContextFree) PartialFit(decisions []Arm, rewards []float64, _ [][]float64) error {
	c.learner.Learn(decisions, rewards)
	return nil
}

func (c *ContextFree) Predict(contexts [][]float64) ([]Arm, error) {
	if contexts != nil {
		return nil, fmt.Errorf("context-free policy does not accept contexts")
	}
	return []Arm{c.learner.Choose(c.rng)}, nil
}

func (c *ContextFree) PredictExpectations(contexts [][]float64) ([]map[Arm]float64, error) {
	if contexts != nil {
		return nil, fmt.Errorf("context-free policy does not accept contexts")
	}
	return []map[Arm]float64{c.learner.Expectations()}, nil
}

// effectiveJobs bounds a policy's configured parallelism by the work size.
// Negative values count back from the number of CPUs, so -1 means all CPUs.
func effectiveJobs(size, jobs int) int {
	if jobs < 0 {
		jobs = max(runtime.NumCPU()+1+jobs, 1)
	}
	if jobs == 0 {
		jobs = 1
	}
	return min(jobs, max(size, 1))
}
