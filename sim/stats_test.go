package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetArmStats_BasicExample(t *testing.T) {
	arms := []Arm{"A", "B"}
	decisions := []Arm{"A", "A", "B", "A"}
	rewards := []float64{20, 17, 25, 9}

	stats := GetArmStats(decisions, rewards, arms)

	a := stats["A"]
	assert.Equal(t, 3, a.Count)
	assert.Equal(t, 46.0, a.Sum)
	assert.Equal(t, 9.0, a.Min)
	assert.Equal(t, 20.0, a.Max)
	assert.InDelta(t, 15.333, a.Mean, 0.001)

	b := stats["B"]
	assert.Equal(t, 1, b.Count)
	assert.Equal(t, 25.0, b.Sum)
	assert.Equal(t, 25.0, b.Min)
	assert.Equal(t, 25.0, b.Max)
	assert.Equal(t, 25.0, b.Mean)
	assert.Equal(t, 0.0, b.Std)
}

func TestGetArmStats_MissingArm_IsZeroedNotNaN(t *testing.T) {
	stats := GetArmStats([]Arm{"A", "A"}, []float64{1, 2}, []Arm{"A", "B"})

	b := stats["B"]
	assert.Equal(t, ArmStats{}, b)
}

func TestArmStats_StatSelection(t *testing.T) {
	s := ArmStats{Min: 1, Mean: 2, Max: 3}
	assert.Equal(t, 1.0, s.Stat(StatMin))
	assert.Equal(t, 2.0, s.Stat(StatMean))
	assert.Equal(t, 3.0, s.Stat(StatMax))
}

func TestDefaultEvaluator_MatchedPredictionsUseActualRewards(t *testing.T) {
	arms := []Arm{"A", "B"}
	decisions := []Arm{"A", "B", "A"}
	rewards := []float64{10, 20, 30}
	predictions := []Arm{"A", "B", "A"}

	ref := ReferenceStats{Train: map[Arm]ArmStats{"A": {Mean: 99}, "B": {Mean: 99}}}
	out := DefaultEvaluator(arms, decisions, rewards, predictions, ref, StatMean, 0)

	assert.Equal(t, 2, out["A"].Count)
	assert.Equal(t, 40.0, out["A"].Sum)
	assert.Equal(t, 1, out["B"].Count)
	assert.Equal(t, 20.0, out["B"].Sum)
}

func TestDefaultEvaluator_MismatchImputesTrainingStat(t *testing.T) {
	arms := []Arm{"A", "B"}
	decisions := []Arm{"A", "A"}
	rewards := []float64{10, 30}
	predictions := []Arm{"B", "B"} // never matches

	ref := ReferenceStats{Train: map[Arm]ArmStats{
		"A": {Min: 1, Mean: 2, Max: 3},
		"B": {Min: 4, Mean: 5, Max: 6},
	}}

	out := DefaultEvaluator(arms, decisions, rewards, predictions, ref, StatMin, 0)
	assert.Equal(t, 2, out["B"].Count)
	assert.Equal(t, 8.0, out["B"].Sum) // imputed min of B, twice
	assert.Equal(t, ArmStats{}, out["A"])
}

func TestDefaultEvaluator_NeighborhoodImputation(t *testing.T) {
	arms := []Arm{"A", "B"}
	decisions := []Arm{"A"}
	rewards := []float64{10}
	predictions := []Arm{"B"}

	nhoods := []map[Arm]ArmStats{
		nil, // rows before startIndex
		{"B": {Count: 2, Mean: 7}},
	}
	ref := ReferenceStats{
		Train:         map[Arm]ArmStats{"B": {Mean: 99}},
		Neighborhoods: nhoods,
	}

	out := DefaultEvaluator(arms, decisions, rewards, predictions, ref, StatMean, 1)
	assert.Equal(t, 7.0, out["B"].Sum)
}

func TestDefaultEvaluator_NeighborhoodWithoutArmDataDropsPrediction(t *testing.T) {
	arms := []Arm{"A", "B"}
	ref := ReferenceStats{
		Train:         map[Arm]ArmStats{"B": {Mean: 99}},
		Neighborhoods: []map[Arm]ArmStats{{}}, // empty neighborhood for row 0
	}

	out := DefaultEvaluator(arms, []Arm{"A"}, []float64{10}, []Arm{"B"}, ref, StatMean, 0)
	assert.Equal(t, ArmStats{}, out["B"])
}

func TestConfusionMatrix_CountsAndAdd(t *testing.T) {
	arms := []Arm{"A", "B"}
	m1 := NewConfusionMatrix(arms, []Arm{"A", "A", "B"}, []Arm{"A", "B", "B"})
	assert.Equal(t, [][]int{{1, 1}, {0, 1}}, m1.Counts)

	m2 := NewConfusionMatrix(arms, []Arm{"B", "B"}, []Arm{"A", "B"})
	sum, err := m1.Add(m2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 1}, {1, 2}}, sum.Counts)
}

func TestConfusionMatrix_AddRejectsMismatchedArms(t *testing.T) {
	m1 := NewConfusionMatrix([]Arm{"A", "B"}, nil, nil)
	m2 := NewConfusionMatrix([]Arm{"A", "C"}, nil, nil)
	_, err := m1.Add(m2)
	require.Error(t, err)
}
