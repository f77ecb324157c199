// Package conformance is a small harness for checking asset loaders against
// the negotiation protocol.
//
// Key types:
//   - Recorder: a Listener that records every event and hands out Sinks
//   - Sink: a SampleConsumer that collects samples in memory
//   - ScriptDriver: an assetloader.Driver that replays a list of Steps,
//     including deliberately malformed sequences
//
// Primary entry points:
//   - Run: drives one session to completion or failure and returns a Report
//   - CheckTrace: verifies a recorded event sequence has the shape
//     duration, track count, one track event per declared track, and at most
//     one trailing error
package conformance
