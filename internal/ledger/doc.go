// Package ledger persists dispatcher batches and task outcomes in SQLite so
// completed runs can be inspected after the fact.
//
// The Store records one row per batch (pipeline, stage, worker count, final
// status) and one row per task (rendered command, exit code, stderr capture
// path, duration). Recording is purely additive observability: the pipelines
// behave identically whether or not the ledger is ever queried.
//
// The database is treated as an operational log rather than a long-term
// archive. Schema changes bump the version in schema.go; users delete the
// database to adopt the new schema.
package ledger
