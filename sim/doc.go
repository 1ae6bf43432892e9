// Package sim provides an offline simulation engine for comparing
// multi-armed bandit policies against a shared historical decision log.
//
// # Reading Guide
//
// Start with these three files to understand the evaluation kernel:
//   - model.go: the Model contract every candidate policy satisfies, plus the
//     neighbor-policy capability extensions
//   - replay.go: the chunked replay loops (offline single pass, online
//     batch-score-then-update)
//   - simulator.go: orchestration of validation, train/test split, scaling,
//     training, replay dispatch, and the per-policy result tables
//
// # Architecture
//
// A Simulator owns one immutable decision log (Dataset) and a list of
// uniquely named policies (BanditEntry). Run partitions the log into train
// and test sets (split.go), optionally scales contexts (scaler.go), trains
// every policy once, and replays the test set either in a single pass
// (BatchSize == 0) or in online batches that are scored before the policy is
// allowed to update from them (BatchSize > 0).
//
// Replay is subdivided into memory-bounded chunks sized by the distance
// footprint heuristic in split.go. Within one chunk, neighbor policies that
// predict from pairwise distances share a single distance computation
// through DistanceCache (distance.go); the cache lives for exactly one chunk.
//
// Descriptive per-arm statistics, confusion matrices, and min/mean/max
// evaluation snapshots are produced per checkpoint (stats.go) and exposed as
// maps keyed by policy name on the Simulator.
//
// # Policies
//
// Concrete policies live alongside the engine: context-free learners
// (policy.go) and neighborhood policies that apply a context-free learner to
// the historical rows nearest each test context (neighbors.go). Before
// training, the Simulator wraps recognized neighbor policies in
// simulation-instrumented variants (neighbors_sim.go) that record per-row
// expectations, neighborhood sizes, and per-neighborhood arm statistics.
package sim
