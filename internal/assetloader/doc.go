// Package assetloader defines the negotiation protocol between an asset
// loader, the pipeline-side Listener it reports to, and the SampleConsumers
// that receive samples once a track's output type is agreed.
//
// A session moves through a strict sequence: the loader is started, reports
// the asset duration, then the track count, then exactly one track event per
// declared track. For every track the Listener returns a SampleConsumer and
// the session negotiates ENCODED or DECODED output against the capabilities
// the loader advertised. Samples then flow into each consumer until the
// session is released. Any error is reported once and the session releases
// itself.
//
// Key types:
//   - Guard: validates every listener-bound transition and turns protocol
//     violations into a single InvalidState report
//   - Session: reusable loader skeleton that owns the Guard, background
//     workers, decoder registry, progress bookkeeping and teardown; concrete
//     loaders plug in a Driver
//   - Error: classified failure carrying one of the ErrorKind values
//
// Concurrency: Start, Progress, DecoderNames and Release belong to the owning
// goroutine. Listener callbacks and consumer pushes happen on worker
// goroutines. Guard state is lock-protected so both sides may race freely.
package assetloader
