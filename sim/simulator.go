package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Simulator evaluates and compares bandit policies against one shared
// historical decision log. It owns the log for the run's duration, drives
// the split/scale/train/replay pipeline, and exposes the per-policy result
// tables once Run returns.
type Simulator struct {
	cfg     SimulatorConfig
	bandits []BanditEntry
	dataset *Dataset
	scaler  Scaler
	arms    []Arm
	maxJobs int
	rng     *PartitionedRNG

	replay *replayEngine

	// Descriptive per-arm statistics for the full log and its partitions.
	ArmToStatsTotal map[Arm]ArmStats
	ArmToStatsTrain map[Arm]ArmStats
	ArmToStatsTest  map[Arm]ArmStats

	// Per-policy result tables, keyed by policy name.
	Predictions       map[string][]Arm
	Expectations      map[string][]map[Arm]float64
	ConfusionMatrices map[string][]ConfusionMatrix

	// Evaluation snapshots keyed by policy name, then checkpoint
	// ("0", "1", ... batch indices, and "total").
	EvaluationsMin map[string]map[string]map[Arm]ArmStats
	EvaluationsAvg map[string]map[string]map[Arm]ArmStats
	EvaluationsMax map[string]map[string]map[Arm]ArmStats

	// Neighborhood bookkeeping for neighbor policies outside quick runs.
	NeighborhoodSizes map[string][]int
	NeighborhoodStats map[string][]map[Arm]ArmStats

	// TestIndices are the original log positions of the test rows.
	TestIndices []int
}

// NewSimulator validates the run configuration and builds a Simulator.
// Any violation fails here with a descriptive error; the run never starts.
func NewSimulator(bandits []BanditEntry, dataset *Dataset, scaler Scaler, cfg SimulatorConfig) (*Simulator, error) {
	if len(bandits) == 0 {
		return nil, fmt.Errorf("simulator: at least one bandit is required")
	}
	seen := make(map[string]struct{}, len(bandits))
	for _, entry := range bandits {
		if entry.Name == "" {
			return nil, fmt.Errorf("simulator: every bandit must have a non-empty name")
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("simulator: duplicate bandit name %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if entry.Model == nil {
			return nil, fmt.Errorf("simulator: bandit %q has no model", entry.Name)
		}
	}

	if dataset == nil {
		return nil, fmt.Errorf("simulator: dataset is required")
	}
	if err := dataset.validate(); err != nil {
		return nil, err
	}
	for _, entry := range bandits {
		if entry.Model.IsContextual() && dataset.Contexts == nil {
			return nil, fmt.Errorf("simulator: bandit %q is contextual but the dataset has no contexts", entry.Name)
		}
	}

	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		return nil, fmt.Errorf("simulator: test size must be in (0, 1), got %v", cfg.TestSize)
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("simulator: batch size must not be negative, got %d", cfg.BatchSize)
	}
	testSize := int(math.Ceil(float64(dataset.Len()) * cfg.TestSize))
	if cfg.BatchSize > testSize {
		return nil, fmt.Errorf("simulator: batch size %d cannot be larger than the test set (%d rows)", cfg.BatchSize, testSize)
	}
	// same rounding as the split planner, so what passes here cannot
	// produce an empty training partition in Run
	if trainSize := int(float64(dataset.Len()) * (1 - cfg.TestSize)); trainSize == 0 {
		return nil, fmt.Errorf("simulator: test size %v leaves no training rows out of %d", cfg.TestSize, dataset.Len())
	}

	// arm set is shared by every entry and taken from the first
	arms := bandits[0].Model.Arms()
	if len(arms) == 0 {
		return nil, fmt.Errorf("simulator: bandit %q declares no arms", bandits[0].Name)
	}

	// The worker pool each policy may run internally is bounded by the test
	// set; the maximum across policies feeds the chunk-size heuristic so
	// per-job distance memory stays bounded.
	maxJobs := 1
	for _, entry := range bandits {
		jobs := 1
		if p, ok := entry.Model.(Parallelized); ok {
			jobs = p.Jobs()
		}
		maxJobs = max(maxJobs, effectiveJobs(testSize, jobs))
	}

	return &Simulator{
		cfg:     cfg,
		bandits: append([]BanditEntry(nil), bandits...),
		dataset: dataset,
		scaler:  scaler,
		arms:    append([]Arm(nil), arms...),
		maxJobs: maxJobs,
		rng:     NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
	}, nil
}

// Arms returns the arm set shared by all policies in the run.
func (s *Simulator) Arms() []Arm {
	return append([]Arm(nil), s.arms...)
}

// Run executes the simulation: descriptive statistics, train/test split,
// optional scaling, one full fit per policy, then chunked replay. Policy
// failures during fit or predict abort the run; a partially evaluated
// comparison set is never reported.
func (s *Simulator) Run() error {
	s.logParameters()

	s.ArmToStatsTotal = GetArmStats(s.dataset.Decisions, s.dataset.Rewards, s.arms)
	logrus.Infof("Total Stats %v", s.ArmToStatsTotal)

	logrus.Info("Train/Test Split")
	planner := &splitPlanner{cfg: s.cfg, maxJobs: s.maxJobs, rng: s.rng.ForSubsystem(SubsystemSplit)}
	split := planner.split(s.dataset)
	s.TestIndices = split.TestIndices
	logrus.Infof("Train size: %d", len(split.TrainDecisions))
	logrus.Infof("Test size: %d", len(split.TestDecisions))

	if s.scaler != nil && split.TrainContexts != nil {
		logrus.Info("Train/Test Scale")
		split.TrainContexts = s.scaler.FitTransform(split.TrainContexts)
		split.TestContexts = s.scaler.Transform(split.TestContexts)
	}

	s.ArmToStatsTrain = GetArmStats(split.TrainDecisions, split.TrainRewards, s.arms)
	logrus.Infof("Train Stats %v", s.ArmToStatsTrain)
	s.ArmToStatsTest = GetArmStats(split.TestDecisions, split.TestRewards, s.arms)
	logrus.Infof("Test Stats %v", s.ArmToStatsTest)

	if err := s.trainBandits(split); err != nil {
		return err
	}

	logrus.Info("Testing Bandits")
	s.replay = newReplayEngine(s)
	var err error
	if s.cfg.BatchSize > 0 {
		err = s.replay.runOnline(split)
	} else {
		err = s.replay.runOffline(split)
	}
	if err != nil {
		return err
	}

	logrus.Info("Simulation complete")
	return nil
}

// trainBandits initializes the result tables, wraps recognized neighbor
// policies in their instrumented variants, and fits every policy once on the
// training partition.
func (s *Simulator) trainBandits(split *SplitResult) error {
	logrus.Info("Training Bandits")

	s.Predictions = make(map[string][]Arm, len(s.bandits))
	s.Expectations = make(map[string][]map[Arm]float64, len(s.bandits))
	s.ConfusionMatrices = make(map[string][]ConfusionMatrix, len(s.bandits))
	s.EvaluationsMin = make(map[string]map[string]map[Arm]ArmStats, len(s.bandits))
	s.EvaluationsAvg = make(map[string]map[string]map[Arm]ArmStats, len(s.bandits))
	s.EvaluationsMax = make(map[string]map[string]map[Arm]ArmStats, len(s.bandits))
	s.NeighborhoodSizes = make(map[string][]int)
	s.NeighborhoodStats = make(map[string][]map[Arm]ArmStats)

	for i := range s.bandits {
		name := s.bandits[i].Name
		s.EvaluationsMin[name] = make(map[string]map[Arm]ArmStats)
		s.EvaluationsAvg[name] = make(map[string]map[Arm]ArmStats)
		s.EvaluationsMax[name] = make(map[string]map[Arm]ArmStats)

		model := instrumentNeighbors(s.bandits[i].Model, s.cfg.Quick)
		s.bandits[i].Model = model

		var contexts [][]float64
		if model.IsContextual() {
			contexts = split.TrainContexts
		}
		if err := model.Fit(split.TrainDecisions, split.TrainRewards, contexts); err != nil {
			return fmt.Errorf("%s: fit: %w", name, err)
		}
		logrus.Infof("%s trained", name)
	}
	return nil
}

func (s *Simulator) logParameters() {
	logrus.Info("Simulation Parameters")
	names := make([]string, len(s.bandits))
	for i, entry := range s.bandits {
		names[i] = entry.Name
	}
	logrus.Infof("\t bandits: %v", names)
	logrus.Infof("\t scaler: %v", s.scaler != nil)
	logrus.Infof("\t test_size: %v", s.cfg.TestSize)
	logrus.Infof("\t is_ordered: %v", s.cfg.Ordered)
	logrus.Infof("\t batch_size: %d", s.cfg.BatchSize)
	logrus.Infof("\t seed: %d", s.cfg.Seed)
	logrus.Infof("\t is_quick: %v", s.cfg.Quick)
}
