package sim

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
)

// ArmStats holds descriptive statistics for one arm over a data slice.
// A zero-occurrence arm yields the zero value for every field, never NaN.
type ArmStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
	Std   float64
}

// StatKind selects which descriptive statistic an evaluator imputes for
// predictions that diverge from the logged decision.
type StatKind string

const (
	StatMin  StatKind = "min"
	StatMean StatKind = "mean"
	StatMax  StatKind = "max"
)

// Stat returns the named statistic from the record.
func (s ArmStats) Stat(kind StatKind) float64 {
	switch kind {
	case StatMin:
		return s.Min
	case StatMax:
		return s.Max
	default:
		return s.Mean
	}
}

// rewardStats computes descriptive statistics over a non-empty reward slice.
func rewardStats(rewards []float64) ArmStats {
	data := stats.Float64Data(rewards)
	sum, _ := stats.Sum(data)
	minv, _ := stats.Min(data)
	maxv, _ := stats.Max(data)
	mean, _ := stats.Mean(data)
	std, _ := stats.StandardDeviationPopulation(data)
	return ArmStats{
		Count: len(rewards),
		Sum:   sum,
		Min:   minv,
		Max:   maxv,
		Mean:  mean,
		Std:   std,
	}
}

// GetArmStats calculates descriptive statistics for each arm over the given
// slice of the log. Rewards are selected where the decision equals the arm;
// an arm with no occurrences yields a zeroed record and an informational note.
func GetArmStats(decisions []Arm, rewards []float64, arms []Arm) map[Arm]ArmStats {
	out := make(map[Arm]ArmStats, len(arms))
	for _, arm := range arms {
		var selected []float64
		for i, d := range decisions {
			if d == arm {
				selected = append(selected, rewards[i])
			}
		}
		if len(selected) == 0 {
			out[arm] = ArmStats{}
			logrus.Infof("No historic data for %s", arm)
			continue
		}
		out[arm] = rewardStats(selected)
	}
	return out
}

// ReferenceStats scopes the baseline statistics handed to an evaluator.
// Train is always the training-set arm statistics. Neighborhoods is non-nil
// only for neighbor-based policies outside quick mode, holding the per-row
// neighborhood statistics so predictions can be scored relative to the
// neighborhood actually used for each decision.
type ReferenceStats struct {
	Train         map[Arm]ArmStats
	Neighborhoods []map[Arm]ArmStats
}

// Evaluator scores a policy's predictions for one checkpoint. startIndex is
// the offset of predictions[0] within the full test set, used to index
// ReferenceStats.Neighborhoods.
type Evaluator func(arms []Arm, decisions []Arm, rewards []float64, predictions []Arm,
	ref ReferenceStats, kind StatKind, startIndex int) map[Arm]ArmStats

// DefaultEvaluator credits the logged reward where a prediction matches the
// logged decision. Where it diverges, the reward the policy would plausibly
// have seen is imputed: the requested statistic of the predicted arm over
// the row's neighborhood when neighborhood statistics are available, over
// the training set otherwise. Arms never predicted yield a zeroed record.
func DefaultEvaluator(arms []Arm, decisions []Arm, rewards []float64, predictions []Arm,
	ref ReferenceStats, kind StatKind, startIndex int) map[Arm]ArmStats {

	armToRewards := make(map[Arm][]float64, len(arms))
	for i, prediction := range predictions {
		switch {
		case prediction == decisions[i]:
			armToRewards[prediction] = append(armToRewards[prediction], rewards[i])
		case ref.Neighborhoods != nil:
			nhood := ref.Neighborhoods[startIndex+i]
			if st, ok := nhood[prediction]; ok && st.Count > 0 {
				armToRewards[prediction] = append(armToRewards[prediction], st.Stat(kind))
			}
		default:
			armToRewards[prediction] = append(armToRewards[prediction], ref.Train[prediction].Stat(kind))
		}
	}

	out := make(map[Arm]ArmStats, len(arms))
	for _, arm := range arms {
		if selected := armToRewards[arm]; len(selected) > 0 {
			out[arm] = rewardStats(selected)
		} else {
			out[arm] = ArmStats{}
		}
	}
	return out
}

// ConfusionMatrix counts (logged decision, predicted decision) pairs over the
// fixed arm set. Rows index the logged decision, columns the prediction.
type ConfusionMatrix struct {
	Arms   []Arm
	Counts [][]int
}

// NewConfusionMatrix builds a confusion matrix from parallel slices of logged
// and predicted decisions. Decisions outside the arm set are ignored.
func NewConfusionMatrix(arms []Arm, actual []Arm, predicted []Arm) ConfusionMatrix {
	index := make(map[Arm]int, len(arms))
	for i, arm := range arms {
		index[arm] = i
	}
	counts := make([][]int, len(arms))
	for i := range counts {
		counts[i] = make([]int, len(arms))
	}
	for i, a := range actual {
		ai, ok := index[a]
		pi, ok2 := index[predicted[i]]
		if ok && ok2 {
			counts[ai][pi]++
		}
	}
	return ConfusionMatrix{Arms: append([]Arm(nil), arms...), Counts: counts}
}

// Add returns the element-wise sum of two matrices over the same arm set.
func (m ConfusionMatrix) Add(o ConfusionMatrix) (ConfusionMatrix, error) {
	if len(m.Arms) != len(o.Arms) {
		return ConfusionMatrix{}, fmt.Errorf("confusion matrix: arm sets differ in size (%d vs %d)", len(m.Arms), len(o.Arms))
	}
	for i := range m.Arms {
		if m.Arms[i] != o.Arms[i] {
			return ConfusionMatrix{}, fmt.Errorf("confusion matrix: arm sets differ at %d (%s vs %s)", i, m.Arms[i], o.Arms[i])
		}
	}
	sum := NewConfusionMatrix(m.Arms, nil, nil)
	for i := range m.Counts {
		for j := range m.Counts[i] {
			sum.Counts[i][j] = m.Counts[i][j] + o.Counts[i][j]
		}
	}
	return sum, nil
}

// String renders the matrix row-major for logging.
func (m ConfusionMatrix) String() string {
	return fmt.Sprintf("%v %v", m.Arms, m.Counts)
}
