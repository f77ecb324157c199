// Package preflight provides readiness checks for the external binary and
// filesystem paths that ingest depends on.
//
// These checks run in two contexts:
//   - The probe loader calls Readable before discovery so an unreadable asset
//     fails fast as a source read error instead of an opaque ffprobe exit.
//   - The CLI "ingest check" command uses RunAll to display readiness next to
//     the conformance report.
package preflight
