// Package config loads, normalizes, and validates ingest configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files and honours the INGEST_FFPROBE environment fallback. Negotiation
// preferences are kept as strings in the file and parsed into capability
// output types on access so a bad value is caught by Validate.
//
// Always obtain settings through this package so downstream code receives
// absolute paths and canonical log settings.
package config
