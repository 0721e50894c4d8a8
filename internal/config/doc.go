// Package config loads, normalizes, and validates phylobench configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PHYLOBENCH_SCRIPTS. The Config type centralizes every knob the pipelines and
// CLI need, so directory roots, worker counts, and tool locations are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
