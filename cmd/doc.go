// Package cmd implements the command-line interface for liquidmail.
//
// This package provides the following commands:
//   - serve: Start the API backend (and the metrics server)
//   - migrate: Apply the database schema migrations
//   - cleanup: Prune superseded credential rows from the database
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for the HTTP API
//
// The serve command is the default command when no subcommand is specified.
package cmd
