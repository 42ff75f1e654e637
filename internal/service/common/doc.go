// Package common holds helpers shared by several services.
//
// It detects the current operator (hostname/username) for the record header
// and guards the instrument against concurrent readout processes.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
