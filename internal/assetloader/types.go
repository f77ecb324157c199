package assetloader

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ingest/internal/capability"
)

// TrackType identifies the kind of elementary stream. Values match the
// numeric track type keys used by decoder name maps.
type TrackType int

const (
	TrackTypeUnknown TrackType = 0
	TrackTypeAudio   TrackType = 1
	TrackTypeVideo   TrackType = 2
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeAudio:
		return "audio"
	case TrackTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ParseTrackType maps a stream kind such as ffprobe's codec_type.
func ParseTrackType(value string) TrackType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "audio":
		return TrackTypeAudio
	case "video":
		return TrackTypeVideo
	default:
		return TrackTypeUnknown
	}
}

// Duration is an asset duration in microseconds.
type Duration int64

// DurationUnknown is reported when the duration cannot be determined upfront,
// e.g. for live or unseekable sources.
const DurationUnknown Duration = -1

// DurationFromSeconds converts a floating point seconds value. NaN, infinite
// and negative inputs yield DurationUnknown.
func DurationFromSeconds(seconds float64) Duration {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return DurationUnknown
	}
	return Duration(math.Round(seconds * 1e6))
}

// Known reports whether d carries an actual duration.
func (d Duration) Known() bool {
	return d >= 0
}

// Std converts d to a time.Duration. Unknown durations convert to zero.
func (d Duration) Std() time.Duration {
	if !d.Known() {
		return 0
	}
	return time.Duration(d) * time.Microsecond
}

func (d Duration) String() string {
	if !d.Known() {
		return "unknown"
	}
	return d.Std().String()
}

// Asset describes the input to load.
type Asset struct {
	URI string
	// RemoveAudio and RemoveVideo ask the loader to omit those tracks from
	// the declared track count entirely.
	RemoveAudio bool
	RemoveVideo bool
}

// Format describes a track as found in the source, prior to decoding.
type Format struct {
	Type       TrackType
	Codec      string
	Language   string
	Width      int
	Height     int
	SampleRate int
	Channels   int
	BitRate    int64
}

func (f Format) String() string {
	parts := []string{f.Type.String()}
	if f.Codec != "" {
		parts = append(parts, f.Codec)
	}
	switch f.Type {
	case TrackTypeVideo:
		if f.Width > 0 && f.Height > 0 {
			parts = append(parts, fmt.Sprintf("%dx%d", f.Width, f.Height))
		}
	case TrackTypeAudio:
		if f.SampleRate > 0 {
			parts = append(parts, fmt.Sprintf("%dHz", f.SampleRate))
		}
		if f.Channels > 0 {
			parts = append(parts, fmt.Sprintf("%dch", f.Channels))
		}
	}
	if f.Language != "" {
		parts = append(parts, f.Language)
	}
	return strings.Join(parts, " ")
}

// Track is the payload of a track event.
type Track struct {
	// Index is the track's position in the source container.
	Index     int
	Format    Format
	Supported capability.Set
	// StartPositionUs is the stream start position, already shifted by
	// OffsetUs.
	StartPositionUs int64
	// OffsetUs is added to every sample timestamp so they are non-negative.
	OffsetUs int64
}

// Negotiation is the immutable outcome of one track event.
type Negotiation struct {
	Track    Track
	Output   capability.OutputType
	Consumer SampleConsumer
}

// Sample is one unit of media data pushed into a SampleConsumer.
type Sample struct {
	// TimeUs is the presentation timestamp after offsetting.
	TimeUs     int64
	DurationUs int64
	KeyFrame   bool
	// Size is the payload size in bytes; it may be set when Data is omitted.
	Size   int
	Data   []byte
	Output capability.OutputType
}

// ProgressState is the result of a progress poll.
type ProgressState int

const (
	ProgressUnavailable ProgressState = iota
	ProgressAvailable
)

func (p ProgressState) String() string {
	if p == ProgressAvailable {
		return "available"
	}
	return "unavailable"
}

// ProgressHolder receives the percentage when a poll returns
// ProgressAvailable. It is left untouched otherwise.
type ProgressHolder struct {
	Percent int
}
