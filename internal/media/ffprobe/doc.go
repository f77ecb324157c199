// Package ffprobe provides a typed wrapper around ffprobe.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (start, duration, size, bitrate)
//   - Packet: one demuxed packet from a packet listing
//
// Primary entry points:
//   - Inspect: executes ffprobe and returns parsed Result
//   - ReadPackets: streams the packet listing of a file to a callback
//
// Helper methods on Result and Stream provide convenient access to stream
// counts, start offsets, duration parsing, and bitrate extraction.
package ffprobe
