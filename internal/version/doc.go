// Package version carries the build metadata stamped into the readout
// binaries via ldflags, and the cobra subcommand that prints it.
package version
