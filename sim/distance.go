package sim

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Metric names a pairwise context distance function.
type Metric string

const (
	Euclidean Metric = "euclidean"
	Manhattan Metric = "manhattan"
	Cosine    Metric = "cosine"
)

// ParseMetric validates a metric name from configuration.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case Euclidean, Manhattan, Cosine:
		return Metric(name), nil
	}
	return "", fmt.Errorf("unknown distance metric %q", name)
}

// between returns the distance between two equal-length vectors.
func (m Metric) between(a, b []float64) float64 {
	switch m {
	case Manhattan:
		return floats.Distance(a, b, 1)
	case Cosine:
		na := floats.Norm(a, 2)
		nb := floats.Norm(b, 2)
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - floats.Dot(a, b)/(na*nb)
	default:
		return floats.Distance(a, b, 2)
	}
}

// Distances holds, for each context row in a chunk, its distance to every
// row of the training history.
type Distances [][]float64

// computeDistances calculates the distances from each context row to the
// full training history, fanning rows out over at most jobs workers.
func computeDistances(contexts [][]float64, history [][]float64, metric Metric, jobs int) Distances {
	out := make(Distances, len(contexts))
	var g errgroup.Group
	g.SetLimit(max(jobs, 1))
	for i := range contexts {
		i := i
		g.Go(func() error {
			row := make([]float64, len(history))
			for j := range history {
				row[j] = metric.between(contexts[i], history[j])
			}
			out[i] = row
			return nil
		})
	}
	// workers never return errors; Wait only joins them
	_ = g.Wait()
	return out
}

// DistanceCache shares context-to-history distances across the neighbor
// policies evaluated on one chunk. The first distance-sharing policy in a
// chunk fills the cache; every later one with the same metric reads it
// instead of recomputing, valid because all policies in a run replay against
// the identical fixed training history. Policies on a different metric
// compute their own distances. The cache lives for exactly one chunk: Reset
// is called at the start of the next chunk.
type DistanceCache struct {
	distances Distances
	metric    Metric
	fills     int
}

// Reset discards the cached distances at a chunk boundary.
func (c *DistanceCache) Reset() {
	c.distances = nil
	c.metric = ""
}

// Populated reports whether the current chunk's distances are cached.
func (c *DistanceCache) Populated() bool {
	return c.distances != nil
}

// Fill stores the distances computed by the first policy in the chunk,
// tagged with the metric that produced them.
func (c *DistanceCache) Fill(d Distances, metric Metric) {
	c.distances = d
	c.metric = metric
	c.fills++
}

// Metric returns the metric the cached distances were computed under.
// Meaningless while the cache is empty.
func (c *DistanceCache) Metric() Metric {
	return c.metric
}

// Distances returns the cached distances for read-only sharing.
func (c *DistanceCache) Distances() Distances {
	return c.distances
}

// Fills returns how many times the cache has been populated across the run,
// i.e. the number of chunk-level distance computations performed.
func (c *DistanceCache) Fills() int {
	return c.fills
}
