// Package rtpsink provides a SampleConsumer that turns ENCODED samples into
// RTP packets using pion/rtp payloaders and writes them to an io.Writer with
// RFC 4571 two-byte length framing.
//
// Supported codecs: h264, vp8, vp9, av1 and opus. H.264 access units in
// length-prefixed form are converted to start-code form before
// packetization.
package rtpsink
