// Package probeloader implements an asset loader backed by ffprobe.
//
// Discovery runs ffprobe once to learn the container duration and streams,
// keeps at most one audio and one video stream, and reports them through the
// assetloader Session. Samples come from ffprobe's packet listing: packets
// are routed per track, restored to presentation order inside a bounded
// reorder window, offset so timestamps start at zero or later, and pushed
// into the negotiated consumers by one worker per track.
//
// ENCODED output is always offered. DECODED is offered for codecs with a
// known ffmpeg decoder and is recorded as "ffmpeg/<codec>" in the decoder
// names; samples still carry the demuxed payload.
//
// An exclusive lock file per asset (gofrs/flock) keeps two sessions from
// loading the same file concurrently.
package probeloader
