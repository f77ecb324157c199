// Package main hosts the ingest CLI entrypoint and command graph.
//
// The Cobra command tree wires configuration, logging and the session
// journal around the probe loader: load runs one negotiation session and
// reports the outcome, check runs preflight and the conformance harness,
// history lists journaled sessions, and config manages the TOML file.
//
// Keep this package lean. New behaviour belongs in the internal packages and
// is surfaced here through commands or flags.
package main
