// Package record implements persistence for run records.
//
// The file repository writes one human-readable text artifact per run, a
// header of #-prefixed metadata lines followed by elapsed/value rows, so
// existing analysis tooling keeps working on the output. The sqlite
// repository stores the same records in an embedded database. Both expose
// the Repository interface the acquisition and analysis services depend on.
package record
