package sim

import "fmt"

// Dataset is the immutable historical decision log a simulation replays.
// Contexts is nil when the log carries no feature vectors.
type Dataset struct {
	Decisions []Arm
	Rewards   []float64
	Contexts  [][]float64
}

// Len returns the number of rows in the log.
func (d *Dataset) Len() int {
	return len(d.Decisions)
}

// validate checks the structural invariants of the log: decisions and
// rewards must be non-empty and length-matched, and contexts, when present,
// must be a rectangular 2-D matrix with one row per decision.
func (d *Dataset) validate() error {
	if len(d.Decisions) == 0 {
		return fmt.Errorf("dataset: decisions must not be empty")
	}
	if len(d.Decisions) != len(d.Rewards) {
		return fmt.Errorf("dataset: decisions length %d does not match rewards length %d",
			len(d.Decisions), len(d.Rewards))
	}
	if d.Contexts == nil {
		return nil
	}
	if len(d.Contexts) != len(d.Decisions) {
		return fmt.Errorf("dataset: contexts length %d does not match decisions length %d",
			len(d.Contexts), len(d.Decisions))
	}
	width := len(d.Contexts[0])
	if width == 0 {
		return fmt.Errorf("dataset: context rows must not be empty")
	}
	for i, row := range d.Contexts {
		if len(row) != width {
			return fmt.Errorf("dataset: context row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}

// BanditEntry pairs one candidate policy with its unique label for a run.
type BanditEntry struct {
	Name  string
	Model Model
}
