package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel is a context-free stub whose prediction depends only on how
// many partial fits it has absorbed, exposing the replay engine's call order.
type scriptedModel struct {
	arms    []Arm
	updates int
	events  []string
}

func (m *scriptedModel) Arms() []Arm        { return m.arms }
func (m *scriptedModel) IsContextual() bool { return false }

func (m *scriptedModel) Fit([]Arm, []float64, [][]float64) error {
	m.events = append(m.events, "fit")
	return nil
}

func (m *scriptedModel) PartialFit([]Arm, []float64, [][]float64) error {
	m.events = append(m.events, "update")
	m.updates++
	return nil
}

func (m *scriptedModel) Predict([][]float64) ([]Arm, error) {
	m.events = append(m.events, "predict")
	return []Arm{m.arms[min(m.updates, len(m.arms)-1)]}, nil
}

func (m *scriptedModel) PredictExpectations([][]float64) ([]map[Arm]float64, error) {
	return []map[Arm]float64{{}}, nil
}

// contextualLog builds a log whose even rows reward A near the origin and odd
// rows reward B near (10, 10), so radius neighborhoods are non-trivial.
func contextualLog(n int) *Dataset {
	decisions := make([]Arm, n)
	rewards := make([]float64, n)
	contexts := make([][]float64, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			decisions[i] = "A"
			rewards[i] = float64(10 + i%3)
			contexts[i] = []float64{float64(i % 4), 0}
		} else {
			decisions[i] = "B"
			rewards[i] = float64(20 + i%3)
			contexts[i] = []float64{10 + float64(i%4), 10}
		}
	}
	return &Dataset{Decisions: decisions, Rewards: rewards, Contexts: contexts}
}

// runOfflineWithChunk drives a single offline replay with a forced chunk
// size, bypassing the memory heuristic.
func runOfflineWithChunk(t *testing.T, bandits []BanditEntry, ds *Dataset, cfg SimulatorConfig, chunk int) *Simulator {
	t.Helper()
	s, err := NewSimulator(bandits, ds, nil, cfg)
	require.NoError(t, err)

	planner := &splitPlanner{cfg: s.cfg, maxJobs: s.maxJobs, rng: s.rng.ForSubsystem(SubsystemSplit)}
	split := planner.split(s.dataset)
	split.ChunkSize = chunk
	s.ArmToStatsTrain = GetArmStats(split.TrainDecisions, split.TrainRewards, s.arms)

	require.NoError(t, s.trainBandits(split))
	s.replay = newReplayEngine(s)
	require.NoError(t, s.replay.runOffline(split))
	return s
}

func TestRunOffline_ChunkingDoesNotChangePredictions(t *testing.T) {
	ds := contextualLog(20)
	cfg := SimulatorConfig{TestSize: 0.4, Ordered: true, Seed: 11}
	arms := []Arm{"A", "B"}
	bandits := func() []BanditEntry {
		return []BanditEntry{{Name: "radius", Model: NewRadius(arms, Greedy(), 6.0, Euclidean, 1, 5)}}
	}

	whole := runOfflineWithChunk(t, bandits(), ds, cfg, 8)
	chunked := runOfflineWithChunk(t, bandits(), ds, cfg, 3)

	assert.Equal(t, whole.Predictions["radius"], chunked.Predictions["radius"])
	assert.Equal(t, whole.Expectations["radius"], chunked.Expectations["radius"])
	assert.Equal(t, whole.EvaluationsAvg["radius"][CheckpointTotal], chunked.EvaluationsAvg["radius"][CheckpointTotal])
}

func TestRunOffline_DistanceCacheFilledOncePerChunk(t *testing.T) {
	ds := contextualLog(20)
	cfg := SimulatorConfig{TestSize: 0.4, Ordered: true, Seed: 11}
	arms := []Arm{"A", "B"}
	bandits := []BanditEntry{
		{Name: "r1", Model: NewRadius(arms, Greedy(), 6.0, Euclidean, 1, 5)},
		{Name: "r2", Model: NewRadius(arms, Greedy(), 6.0, Euclidean, 1, 5)},
	}

	// 8 test rows over chunks of 3 is 3 chunks; two sharing policies must not
	// double the fill count
	s := runOfflineWithChunk(t, bandits, ds, cfg, 3)
	assert.Equal(t, 3, s.replay.cache.Fills())

	// identically seeded policies agree whether distances were computed or set
	assert.Equal(t, s.Predictions["r1"], s.Predictions["r2"])
}

func TestRunOffline_MismatchedMetricsDoNotShareDistances(t *testing.T) {
	ds := contextualLog(20)
	cfg := SimulatorConfig{TestSize: 0.4, Ordered: true, Seed: 11}
	arms := []Arm{"A", "B"}

	// radius 15 straddles the clusters under euclidean (cross-cluster
	// distances run 12 to 17) but not under manhattan (17 and up), so
	// injecting euclidean distances into the manhattan policy would visibly
	// change its neighborhoods
	manhattanOnly := runOfflineWithChunk(t, []BanditEntry{
		{Name: "manhattan", Model: NewRadius(arms, Greedy(), 15, Manhattan, 1, 5)},
	}, ds, cfg, 3)

	mixed := runOfflineWithChunk(t, []BanditEntry{
		{Name: "euclidean", Model: NewRadius(arms, Greedy(), 15, Euclidean, 1, 5)},
		{Name: "manhattan", Model: NewRadius(arms, Greedy(), 15, Manhattan, 1, 5)},
	}, ds, cfg, 3)

	assert.Equal(t, manhattanOnly.Predictions["manhattan"], mixed.Predictions["manhattan"])
	assert.Equal(t, manhattanOnly.Expectations["manhattan"], mixed.Expectations["manhattan"])

	// the first sharer in each chunk still fills the cache exactly once
	assert.Equal(t, 3, mixed.replay.cache.Fills())
}

func TestRunOnline_ScoresEachBatchBeforeUpdate(t *testing.T) {
	stub := &scriptedModel{arms: []Arm{"A", "B"}}
	ds := &Dataset{
		Decisions: []Arm{"A", "A", "A", "A", "A", "A", "A", "B", "A", "B"},
		Rewards:   []float64{1, 1, 1, 1, 1, 1, 5, 7, 5, 7},
	}
	cfg := SimulatorConfig{TestSize: 0.4, Ordered: true, BatchSize: 2, Seed: 3}

	s, err := NewSimulator([]BanditEntry{{Name: "stub", Model: stub}}, ds, nil, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Run())

	// every batch is fully predicted before the policy sees its outcomes
	assert.Equal(t, []string{
		"fit",
		"predict", "predict", "update",
		"predict", "predict", "update",
	}, stub.events)

	// batch 0 was predicted by the freshly fit stub (arm A), batch 1 by the
	// once-updated stub (arm B)
	assert.Equal(t, []Arm{"A", "A", "B", "B"}, s.Predictions["stub"])

	require.Len(t, s.ConfusionMatrices["stub"], 3)
	batch0, batch1, total := s.ConfusionMatrices["stub"][0], s.ConfusionMatrices["stub"][1], s.ConfusionMatrices["stub"][2]
	assert.Equal(t, [][]int{{1, 0}, {1, 0}}, batch0.Counts)
	assert.Equal(t, [][]int{{0, 1}, {0, 1}}, batch1.Counts)

	sum, err := batch0.Add(batch1)
	require.NoError(t, err)
	assert.Equal(t, total.Counts, sum.Counts)

	for _, checkpoint := range []string{"0", "1", CheckpointTotal} {
		assert.Contains(t, s.EvaluationsAvg["stub"], checkpoint)
		assert.Contains(t, s.EvaluationsMin["stub"], checkpoint)
		assert.Contains(t, s.EvaluationsMax["stub"], checkpoint)
	}
}

func TestRunOnline_NeighborPolicyAccumulatesHistory(t *testing.T) {
	ds := contextualLog(20)
	cfg := SimulatorConfig{TestSize: 0.4, Ordered: true, BatchSize: 4, Seed: 11}
	arms := []Arm{"A", "B"}
	r := NewRadius(arms, Greedy(), 6.0, Euclidean, 1, 5)

	s, err := NewSimulator([]BanditEntry{{Name: "radius", Model: r}}, ds, nil, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Run())

	// 12 training rows plus two absorbed batches of 4
	decisions, _ := r.trainingHistory()
	assert.Len(t, decisions, 20)

	assert.Len(t, s.Predictions["radius"], 8)
	assert.Len(t, s.Expectations["radius"], 8)
	assert.Contains(t, s.EvaluationsAvg["radius"], CheckpointTotal)
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 1, ceilDiv(3, 8))
	assert.Equal(t, 3, ceilDiv(8, 3))
	assert.Equal(t, 2, ceilDiv(8, 4))
}
