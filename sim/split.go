package sim

import (
	"math/rand"
)

// SplitResult is the train/test partition of a Dataset plus the replay chunk
// size derived from the distance memory footprint.
type SplitResult struct {
	TrainDecisions []Arm
	TrainRewards   []float64
	TrainContexts  [][]float64

	TestDecisions []Arm
	TestRewards   []float64
	TestContexts  [][]float64

	// TestIndices are the original positions of the test rows: a contiguous
	// suffix for ordered splits, the shuffle's permutation otherwise.
	TestIndices []int

	// ChunkSize bounds how many test rows are replayed together.
	ChunkSize int
}

// splitPlanner partitions the dataset and sizes replay chunks.
type splitPlanner struct {
	cfg     SimulatorConfig
	maxJobs int
	rng     *rand.Rand
}

// split partitions the dataset chronologically when Ordered is set, or by a
// seeded shuffle otherwise, then computes the replay chunk size.
func (p *splitPlanner) split(ds *Dataset) *SplitResult {
	n := ds.Len()
	trainSize := int(float64(n) * (1 - p.cfg.TestSize))

	res := &SplitResult{}
	if p.cfg.Ordered {
		res.TrainDecisions = ds.Decisions[:trainSize]
		res.TrainRewards = ds.Rewards[:trainSize]
		res.TestDecisions = ds.Decisions[trainSize:]
		res.TestRewards = ds.Rewards[trainSize:]
		if ds.Contexts != nil {
			res.TrainContexts = ds.Contexts[:trainSize]
			res.TestContexts = ds.Contexts[trainSize:]
		}
		res.TestIndices = make([]int, 0, n-trainSize)
		for i := trainSize; i < n; i++ {
			res.TestIndices = append(res.TestIndices, i)
		}
	} else {
		perm := p.rng.Perm(n)
		pick := func(indices []int) ([]Arm, []float64, [][]float64) {
			decisions := make([]Arm, len(indices))
			rewards := make([]float64, len(indices))
			var contexts [][]float64
			if ds.Contexts != nil {
				contexts = make([][]float64, len(indices))
			}
			for i, idx := range indices {
				decisions[i] = ds.Decisions[idx]
				rewards[i] = ds.Rewards[idx]
				if contexts != nil {
					contexts[i] = ds.Contexts[idx]
				}
			}
			return decisions, rewards, contexts
		}
		res.TrainDecisions, res.TrainRewards, res.TrainContexts = pick(perm[:trainSize])
		res.TestDecisions, res.TestRewards, res.TestContexts = pick(perm[trainSize:])
		res.TestIndices = append([]int(nil), perm[trainSize:]...)
	}

	res.ChunkSize = p.chunkSize(len(res.TestDecisions), len(res.TrainDecisions), res.TrainContexts != nil)
	return res
}

// chunkSize estimates the memory footprint of holding one distance value per
// (test row × train row) pair. Above the configured threshold, with contexts
// present, replay is chunked so that per-job memory stays bounded; otherwise
// the whole test set is one chunk.
func (p *splitPlanner) chunkSize(testSize, trainSize int, hasContexts bool) int {
	footprintGB := float64(testSize) * p.cfg.bytesPerDistance() * float64(trainSize) / 1e9
	if footprintGB > p.cfg.maxDistanceGB() && hasContexts {
		gbChunk := int(float64(testSize)/footprintGB) * p.maxJobs
		return min(max(gbChunk, 1), testSize)
	}
	return testSize
}
