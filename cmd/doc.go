// Package cmd implements the command-line interface for driftkv. It
// provides a hierarchical command structure with operations for running
// a worker node and interacting with one as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations against a running worker (get, put, add)
//   - serve: Commands for starting and configuring a driftkv worker node
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See driftkv -help for a list of all commands.
package cmd
