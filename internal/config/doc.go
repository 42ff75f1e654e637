// Package config defines bench settings shared by the readout binaries and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the instrument connection, the record storage
// backend and the optional live telemetry settings.
package config
