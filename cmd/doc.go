// Package cmd implements the command-line interface for the cedar in-memory
// key-value store. It provides a hierarchical command structure with
// operations for running the store and working with its snapshot files.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for running the store with scheduled snapshots
//   - rdb: Commands for inspecting snapshot files (check, dump)
//   - bench: Commands for measuring storage engine throughput
//   - util: Shared utilities for command-line processing (internal use)
//
// See cedar -help for a list of all commands.
package cmd
