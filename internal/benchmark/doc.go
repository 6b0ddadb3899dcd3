// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for the hot paths of a build:
//   - import statement parsing and the dynamic import scan
//   - dependency graph discovery over a synthetic project
//   - the planning pipeline and a full build with emission
//
// They double as the workload for PGO profile generation:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
