// Package preflight provides readiness checks for the directory roots,
// external programs, and analysis scripts that phylobench depends on.
//
// The CLI "phylobench doctor" command runs RunAll and renders the results
// as a table so operators catch a missing script or an unreadable tree
// before launching a multi-hour evaluation.
package preflight
