package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	sim "github.com/mabsim/mabsim/sim"
)

// PolicySpec describes one candidate policy in the run config.
type PolicySpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // greedy | epsilon-greedy | softmax | radius | k-nearest | lsh

	// Learning policy parameters.
	Epsilon float64 `yaml:"epsilon"`
	Tau     float64 `yaml:"tau"`

	// Neighbor policy parameters. Learning names the per-neighborhood rule.
	Learning   string  `yaml:"learning"`
	Radius     float64 `yaml:"radius"`
	K          int     `yaml:"k"`
	Metric     string  `yaml:"metric"`
	Dimensions int     `yaml:"dimensions"`
	Tables     int     `yaml:"tables"`
	Jobs       int     `yaml:"jobs"`
}

// RunConfig is the YAML description of one simulation run.
type RunConfig struct {
	Data      string       `yaml:"data"` // CSV decision log: decision, reward, then context features
	Arms      []string     `yaml:"arms"` // optional; defaults to the distinct decisions in the log
	TestSize  float64      `yaml:"test_size"`
	Ordered   bool         `yaml:"ordered"`
	BatchSize int          `yaml:"batch_size"`
	Seed      int64        `yaml:"seed"`
	Quick     bool         `yaml:"quick"`
	Scale     bool         `yaml:"scale"` // standard-scale contexts before training
	Policies  []PolicySpec `yaml:"policies"`
}

// LoadRunConfig reads and decodes a YAML run configuration.
func LoadRunConfig(path string) (*RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse run config: %w", err)
	}
	if cfg.Data == "" {
		return nil, fmt.Errorf("run config: data path is required")
	}
	if len(cfg.Policies) == 0 {
		return nil, fmt.Errorf("run config: at least one policy is required")
	}
	return &cfg, nil
}

// LoadDataset reads a CSV decision log. The first column is the decision,
// the second the reward; any further columns are context features. A header
// row is detected by a non-numeric reward cell and skipped.
func LoadDataset(path string) (*sim.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read decision log: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("decision log %s is empty", path)
	}
	if len(records[0]) < 2 {
		return nil, fmt.Errorf("decision log %s needs at least decision and reward columns", path)
	}
	if _, err := strconv.ParseFloat(records[0][1], 64); err != nil {
		records = records[1:] // header row
	}

	ds := &sim.Dataset{}
	hasContexts := len(records) > 0 && len(records[0]) > 2
	for i, rec := range records {
		reward, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("decision log row %d: bad reward %q: %w", i, rec[1], err)
		}
		ds.Decisions = append(ds.Decisions, rec[0])
		ds.Rewards = append(ds.Rewards, reward)
		if hasContexts {
			features := make([]float64, len(rec)-2)
			for j, cell := range rec[2:] {
				if features[j], err = strconv.ParseFloat(cell, 64); err != nil {
					return nil, fmt.Errorf("decision log row %d: bad feature %q: %w", i, cell, err)
				}
			}
			ds.Contexts = append(ds.Contexts, features)
		}
	}
	return ds, nil
}

// ArmsFor returns the configured arm set, or the distinct decisions in the
// log in sorted order.
func (c *RunConfig) ArmsFor(ds *sim.Dataset) []sim.Arm {
	if len(c.Arms) > 0 {
		return append([]sim.Arm(nil), c.Arms...)
	}
	seen := make(map[sim.Arm]struct{})
	for _, d := range ds.Decisions {
		seen[d] = struct{}{}
	}
	arms := make([]sim.Arm, 0, len(seen))
	for arm := range seen {
		arms = append(arms, arm)
	}
	sort.Strings(arms)
	return arms
}

// learningPolicy maps a rule name and parameters onto a learning policy.
func learningPolicy(name string, spec PolicySpec) (sim.LearningPolicy, error) {
	switch name {
	case "", "greedy":
		return sim.Greedy(), nil
	case "epsilon-greedy":
		return sim.EpsilonGreedy(spec.Epsilon), nil
	case "softmax":
		return sim.Softmax(spec.Tau), nil
	}
	return nil, fmt.Errorf("unknown learning policy %q", name)
}

// BuildBandits constructs the policy list for a run. Each policy draws its
// seed from the run seed and its name so runs are reproducible.
func (c *RunConfig) BuildBandits(arms []sim.Arm) ([]sim.BanditEntry, error) {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(c.Seed))
	entries := make([]sim.BanditEntry, 0, len(c.Policies))
	for _, spec := range c.Policies {
		if spec.Name == "" {
			return nil, fmt.Errorf("policy of type %q has no name", spec.Type)
		}
		seed := rng.ForSubsystem(sim.SubsystemPolicy(spec.Name)).Int63()

		var model sim.Model
		switch spec.Type {
		case "greedy", "epsilon-greedy", "softmax":
			lp, err := learningPolicy(spec.Type, spec)
			if err != nil {
				return nil, err
			}
			model = sim.NewContextFree(arms, lp, seed)
		case "radius":
			lp, err := learningPolicy(spec.Learning, spec)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", spec.Name, err)
			}
			metric, err := parseMetric(spec.Metric)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", spec.Name, err)
			}
			model = sim.NewRadius(arms, lp, spec.Radius, metric, spec.Jobs, seed)
		case "k-nearest":
			lp, err := learningPolicy(spec.Learning, spec)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", spec.Name, err)
			}
			metric, err := parseMetric(spec.Metric)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", spec.Name, err)
			}
			model = sim.NewKNearest(arms, lp, spec.K, metric, spec.Jobs, seed)
		case "lsh":
			lp, err := learningPolicy(spec.Learning, spec)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", spec.Name, err)
			}
			model = sim.NewLSH(arms, lp, spec.Dimensions, spec.Tables, spec.Jobs, seed)
		default:
			return nil, fmt.Errorf("policy %q: unknown type %q", spec.Name, spec.Type)
		}
		entries = append(entries, sim.BanditEntry{Name: spec.Name, Model: model})
	}
	return entries, nil
}

func parseMetric(name string) (sim.Metric, error) {
	if name == "" {
		return sim.Euclidean, nil
	}
	return sim.ParseMetric(name)
}
