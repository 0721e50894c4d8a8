// Package pipeline contains the two phylobench drivers: evaluation, which
// scores method results against truth data, and post-processing, which
// prepares and publishes the summary web tree.
//
// Both drivers follow the same shape: acquire the run lock, enumerate tasks
// from the on-disk layout, validate output disjointness, and hand batches to
// the dispatcher. Nothing is communicated between tasks in memory; every
// hand-off happens through files at layout-contract paths, so post stages
// can run as a subset without breaking each other's assumptions.
package pipeline
