// Package dispatch executes task batches through a bounded worker pool with
// halt-on-first-failure semantics.
//
// Task order is shuffled before dispatch to balance load across
// heterogeneous task costs. The first nonzero exit stops the feed; tasks
// already running are allowed to finish, tasks never issued are counted as
// skipped. Context cancellation, by contrast, kills in-flight children. No
// task is ever retried and no per-task timeout exists: a hung task blocks
// its worker slot until cancelled.
//
// Every task outcome is recorded to the ledger when a store is supplied.
// Progress is logged on an interval as observability only.
package dispatch
