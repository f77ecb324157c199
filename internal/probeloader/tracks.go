package probeloader

import (
	"math"
	"strings"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/language"
	"ingest/internal/media/ffprobe"
)

// decodable lists codecs with an ffmpeg decoder the pipeline can use.
var decodable = map[string]struct{}{
	"h264":       {},
	"hevc":       {},
	"vp8":        {},
	"vp9":        {},
	"av1":        {},
	"mpeg2video": {},
	"mpeg4":      {},
	"aac":        {},
	"opus":       {},
	"mp3":        {},
	"flac":       {},
	"vorbis":     {},
	"ac3":        {},
	"eac3":       {},
}

// plannedTrack ties a discovered stream to the track event describing it.
type plannedTrack struct {
	stream ffprobe.Stream
	track  assetloader.Track
}

// planTracks picks the first audio and first video stream, honoring the
// asset's removal flags, and computes the shared timestamp offset.
func planTracks(result ffprobe.Result, asset assetloader.Asset) []plannedTrack {
	var selected []ffprobe.Stream
	if !asset.RemoveVideo {
		if streams := result.StreamsOfType("video"); len(streams) > 0 {
			selected = append(selected, streams[0])
		}
	}
	if !asset.RemoveAudio {
		if streams := result.StreamsOfType("audio"); len(streams) > 0 {
			selected = append(selected, streams[0])
		}
	}
	if len(selected) == 0 {
		return nil
	}

	offset := offsetFor(result, selected)
	planned := make([]plannedTrack, 0, len(selected))
	for _, stream := range selected {
		planned = append(planned, plannedTrack{
			stream: stream,
			track: assetloader.Track{
				Index:           stream.Index,
				Format:          formatOf(stream),
				Supported:       supportedOutputs(stream.CodecName),
				StartPositionUs: max(seconds(stream.StartSeconds())+offset, 0),
				OffsetUs:        offset,
			},
		})
	}
	return planned
}

// offsetFor returns the microseconds to add so the earliest selected stream
// starts at zero or later. Streams keep their relative alignment.
func offsetFor(result ffprobe.Result, streams []ffprobe.Stream) int64 {
	earliest := seconds(result.StartSeconds())
	for _, stream := range streams {
		earliest = min(earliest, seconds(stream.StartSeconds()))
	}
	if earliest < 0 {
		return -earliest
	}
	return 0
}

func formatOf(stream ffprobe.Stream) assetloader.Format {
	return assetloader.Format{
		Type:       assetloader.ParseTrackType(stream.CodecType),
		Codec:      strings.ToLower(strings.TrimSpace(stream.CodecName)),
		Language:   language.FromTags(stream.Tags),
		Width:      stream.Width,
		Height:     stream.Height,
		SampleRate: stream.SampleRateHz(),
		Channels:   stream.Channels,
		BitRate:    stream.BitRateBPS(),
	}
}

func supportedOutputs(codec string) capability.Set {
	supported := capability.NewSet(capability.Encoded)
	if _, ok := decodable[strings.ToLower(strings.TrimSpace(codec))]; ok {
		supported = supported.Union(capability.NewSet(capability.Decoded))
	}
	return supported
}

func decoderName(codec string) string {
	return "ffmpeg/" + codec
}

// assetDuration maps the container duration. Missing or unparsable values
// are unknown.
func assetDuration(result ffprobe.Result) assetloader.Duration {
	raw := strings.TrimSpace(result.Format.Duration)
	if raw == "" || strings.EqualFold(raw, "N/A") {
		return assetloader.DurationUnknown
	}
	secs := result.DurationSeconds()
	if math.IsNaN(secs) {
		return assetloader.DurationUnknown
	}
	return assetloader.DurationFromSeconds(secs)
}

func seconds(value float64) int64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return int64(math.Round(value * 1e6))
}
