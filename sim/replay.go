package sim

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// CheckpointTotal labels the end-of-run evaluation over the full prediction
// history. In online mode it is always written after every batch checkpoint,
// giving a single comparable score across both modes.
const CheckpointTotal = "total"

// replayEngine drives the chunked replay over the test set: a single pass in
// offline mode, or batch-score-then-update loops in online mode. Within a
// chunk it owns the DistanceCache shared by distance-based neighbor policies.
type replayEngine struct {
	sim   *Simulator
	cache *DistanceCache
}

func newReplayEngine(s *Simulator) *replayEngine {
	return &replayEngine{sim: s, cache: &DistanceCache{}}
}

// predictChunk collects one chunk of predictions and arm expectations for a
// single policy. globalStart is the chunk's offset within the full test set.
func (e *replayEngine) predictChunk(entry BanditEntry, chunkContexts [][]float64, chunkLen, globalStart int) ([]Arm, []map[Arm]float64, error) {
	m := entry.Model

	// Context-free policies have no context dependence: one independent
	// prediction per row, expectations collected at batch/run end.
	if !m.IsContextual() {
		predictions := make([]Arm, chunkLen)
		for i := range predictions {
			p, err := m.Predict(nil)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: predict: %w", entry.Name, err)
			}
			predictions[i] = p[0]
		}
		return predictions, nil, nil
	}

	if ds, ok := m.(DistanceSharer); ok {
		switch {
		case !e.cache.Populated():
			e.cache.Fill(ds.CalculateDistances(chunkContexts), ds.Metric())
			logrus.Debugf("%s: distances calculated", entry.Name)
		case e.cache.Metric() == ds.Metric():
			ds.SetDistances(e.cache.Distances())
			logrus.Debugf("%s: distances set", entry.Name)
		default:
			// cached distances came from another metric; the policy
			// computes its own inside Predict
			logrus.Debugf("%s: cached distances use metric %s, not shared", entry.Name, e.cache.Metric())
		}
	}

	predictions, err := m.Predict(chunkContexts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: predict: %w", entry.Name, err)
	}

	var expectations []map[Arm]float64
	if nm, ok := m.(NeighborModel); ok {
		expectations = nm.RowExpectations(globalStart, globalStart+chunkLen)
	} else {
		expectations, err = m.PredictExpectations(chunkContexts)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: predict expectations: %w", entry.Name, err)
		}
	}
	return predictions, expectations, nil
}

// partialEvaluation records the confusion matrix and the min/mean/max
// evaluation snapshots for one (policy, checkpoint) pair.
func (e *replayEngine) partialEvaluation(name, checkpoint string, decisions, predictions []Arm, rewards []float64, startIndex int, m Model) {
	s := e.sim

	cm := NewConfusionMatrix(s.arms, decisions, predictions)
	s.ConfusionMatrices[name] = append(s.ConfusionMatrices[name], cm)
	logrus.Infof("%s checkpoint %s confusion matrix: %s", name, checkpoint, cm)

	ref := ReferenceStats{Train: s.ArmToStatsTrain}
	if _, ok := m.(NeighborModel); ok && !s.cfg.Quick {
		ref.Neighborhoods = s.NeighborhoodStats[name]
	}

	evaluate := s.cfg.evaluator()
	s.EvaluationsMin[name][checkpoint] = evaluate(s.arms, decisions, rewards, predictions, ref, StatMin, startIndex)
	s.EvaluationsAvg[name][checkpoint] = evaluate(s.arms, decisions, rewards, predictions, ref, StatMean, startIndex)
	s.EvaluationsMax[name][checkpoint] = evaluate(s.arms, decisions, rewards, predictions, ref, StatMax, startIndex)

	logrus.Infof("%s minimum analysis %v", name, s.EvaluationsMin[name][checkpoint])
	logrus.Infof("%s average analysis %v", name, s.EvaluationsAvg[name][checkpoint])
	logrus.Infof("%s maximum analysis %v", name, s.EvaluationsMax[name][checkpoint])
}

// snapshotNeighborhoods refreshes the exposed neighborhood bookkeeping for a
// neighbor policy. No-op for other policies and quick runs.
func (e *replayEngine) snapshotNeighborhoods(name string, m Model) {
	nm, ok := m.(NeighborModel)
	if !ok || e.sim.cfg.Quick {
		return
	}
	e.sim.NeighborhoodSizes[name] = nm.NeighborhoodSizes()
	e.sim.NeighborhoodStats[name] = nm.NeighborhoodArmStats()
}

// runOffline replays the whole test set in one pass of memory-bounded
// chunks, then scores a single "total" checkpoint per policy.
func (e *replayEngine) runOffline(sp *SplitResult) error {
	s := e.sim
	testN := len(sp.TestDecisions)
	numChunks := ceilDiv(testN, sp.ChunkSize)

	for ci := 0; ci < numChunks; ci++ {
		e.cache.Reset()
		logrus.Infof("Chunk %d out of %d", ci+1, numChunks)

		start := ci * sp.ChunkSize
		stop := min(start+sp.ChunkSize, testN)
		var chunkContexts [][]float64
		if sp.TestContexts != nil {
			chunkContexts = sp.TestContexts[start:stop]
		}

		for _, entry := range s.bandits {
			predictions, expectations, err := e.predictChunk(entry, chunkContexts, stop-start, start)
			if err != nil {
				return err
			}
			s.Predictions[entry.Name] = append(s.Predictions[entry.Name], predictions...)
			if entry.Model.IsContextual() {
				s.Expectations[entry.Name] = append(s.Expectations[entry.Name], expectations...)
			}
		}
	}

	for _, entry := range s.bandits {
		if !entry.Model.IsContextual() {
			expectations, err := entry.Model.PredictExpectations(nil)
			if err != nil {
				return fmt.Errorf("%s: predict expectations: %w", entry.Name, err)
			}
			s.Expectations[entry.Name] = expectations
		}
		e.snapshotNeighborhoods(entry.Name, entry.Model)
		e.partialEvaluation(entry.Name, CheckpointTotal, sp.TestDecisions, s.Predictions[entry.Name], sp.TestRewards, 0, entry.Model)
	}
	return nil
}

// runOnline replays the test set in batches: every batch is scored with the
// training-set baseline before the policy is allowed to update from it, then
// one aggregate "total" checkpoint is scored over the full history.
func (e *replayEngine) runOnline(sp *SplitResult) error {
	s := e.sim
	testN := len(sp.TestDecisions)
	numBatches := ceilDiv(testN, s.cfg.BatchSize)

	start := 0
	for i := 0; i < numBatches; i++ {
		logrus.Infof("Starting batch %d", i)
		stop := min(start+s.cfg.BatchSize, testN)

		batchDecisions := sp.TestDecisions[start:stop]
		batchRewards := sp.TestRewards[start:stop]
		var batchContexts [][]float64
		if sp.TestContexts != nil {
			batchContexts = sp.TestContexts[start:stop]
		}

		batchPredictions := make(map[string][]Arm, len(s.bandits))
		batchExpectations := make(map[string][]map[Arm]float64, len(s.bandits))

		// chunks tile the batch; chunk size stays bounded by the run-wide
		// replay chunk size regardless of batch size
		for cs := 0; cs < stop-start; cs += sp.ChunkSize {
			e.cache.Reset()
			ce := min(cs+sp.ChunkSize, stop-start)
			var chunkContexts [][]float64
			if batchContexts != nil {
				chunkContexts = batchContexts[cs:ce]
			}

			for _, entry := range s.bandits {
				predictions, expectations, err := e.predictChunk(entry, chunkContexts, ce-cs, start+cs)
				if err != nil {
					return err
				}
				batchPredictions[entry.Name] = append(batchPredictions[entry.Name], predictions...)
				if entry.Model.IsContextual() {
					batchExpectations[entry.Name] = append(batchExpectations[entry.Name], expectations...)
				}
			}
		}

		for _, entry := range s.bandits {
			name, m := entry.Name, entry.Model
			if !m.IsContextual() {
				expectations, err := m.PredictExpectations(nil)
				if err != nil {
					return fmt.Errorf("%s: predict expectations: %w", name, err)
				}
				batchExpectations[name] = expectations
			}

			s.Predictions[name] = append(s.Predictions[name], batchPredictions[name]...)
			s.Expectations[name] = append(s.Expectations[name], batchExpectations[name]...)
			e.snapshotNeighborhoods(name, m)

			// score the batch before the policy observes its outcomes
			e.partialEvaluation(name, strconv.Itoa(i), batchDecisions, batchPredictions[name], batchRewards, start, m)

			var fitContexts [][]float64
			if m.IsContextual() {
				fitContexts = batchContexts
			}
			if err := m.PartialFit(batchDecisions, batchRewards, fitContexts); err != nil {
				return fmt.Errorf("%s: partial fit: %w", name, err)
			}
			logrus.Infof("%s updated", name)
		}

		start = stop
	}

	// final aggregate score over the entire accumulated prediction history
	for _, entry := range s.bandits {
		e.snapshotNeighborhoods(entry.Name, entry.Model)
		e.partialEvaluation(entry.Name, CheckpointTotal, sp.TestDecisions, s.Predictions[entry.Name], sp.TestRewards, 0, entry.Model)
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
