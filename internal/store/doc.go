// Package store provides SQLite-backed storage for the planner harness.
//
// It holds two things:
//   - Catalog: the databases, tables (with storage format) and views the
//     harness needs for suite setup and for resolving a statement's target
//     table format.
//   - History: an append-only log of harness runs, per-suite outcomes and
//     failure entries, so regressions can be compared across runs.
//
// # Ordering
//
// Runs are ordered by a logical seq INTEGER assigned at BeginRun, never by
// wall-clock time. Failure rows keep the order in which the driver reported
// them (seq within a suite).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
