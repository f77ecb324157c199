// Package capability models the output representations a track producer can
// emit and the negotiation between what a producer advertises and what a
// downstream consumer asks for.
//
// Key types:
//   - OutputType: a single representation (Encoded or Decoded)
//   - Set: a small bit set of OutputType values with explicit set operations
//
// Primary entry point:
//   - Negotiate: picks the output type for a track, preferring Decoded when
//     the consumer states no preference
//
// The numeric values of Encoded and Decoded match the flag values used by
// existing asset loader contracts so masks can be exchanged unchanged.
package capability
