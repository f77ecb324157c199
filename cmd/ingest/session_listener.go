package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/config"
	"ingest/internal/logging"
	"ingest/internal/rtpsink"
)

// trackCounter is the CLI's default consumer: it counts what it is handed.
type trackCounter struct {
	want capability.OutputType

	mu      sync.Mutex
	samples int
	bytes   int64
	ended   bool
	onEnd   func()
}

func (c *trackCounter) ExpectedOutput() capability.OutputType {
	return c.want
}

func (c *trackCounter) QueueSample(ctx context.Context, sample assetloader.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	size := sample.Size
	if size == 0 {
		size = len(sample.Data)
	}
	c.mu.Lock()
	c.samples++
	c.bytes += int64(size)
	c.mu.Unlock()
	return nil
}

func (c *trackCounter) EndOfStream() error {
	c.mu.Lock()
	already := c.ended
	c.ended = true
	onEnd := c.onEnd
	c.mu.Unlock()
	if !already && onEnd != nil {
		onEnd()
	}
	return nil
}

func (c *trackCounter) counts() (int, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples, c.bytes
}

// rtpTrack forwards to an rtpsink.Sink and closes its file at end of stream.
type rtpTrack struct {
	*rtpsink.Sink
	file  io.Closer
	path  string
	onEnd func()
	once  sync.Once
}

func (r *rtpTrack) EndOfStream() error {
	err := r.Sink.EndOfStream()
	r.once.Do(func() {
		if closeErr := r.file.Close(); err == nil {
			err = closeErr
		}
		if r.onEnd != nil {
			r.onEnd()
		}
	})
	return err
}

func (r *rtpTrack) close() {
	r.once.Do(func() { _ = r.file.Close() })
}

// sessionListener receives the session's events for the load command. Done
// closes once every declared track has ended or an error was reported.
type sessionListener struct {
	requirements map[assetloader.TrackType]capability.OutputType
	rtpDir       string
	logger       *slog.Logger

	mu       sync.Mutex
	duration assetloader.Duration
	declared int
	ended    int
	counters map[assetloader.TrackType]*trackCounter
	rtp      map[assetloader.TrackType]*rtpTrack
	err      *assetloader.Error
	done     chan struct{}
	doneOnce sync.Once
}

func newSessionListener(cfg *config.Config, rtpDir string, logger *slog.Logger) *sessionListener {
	return &sessionListener{
		requirements: map[assetloader.TrackType]capability.OutputType{
			assetloader.TrackTypeAudio: cfg.AudioOutput(),
			assetloader.TrackTypeVideo: cfg.VideoOutput(),
		},
		rtpDir:   rtpDir,
		logger:   logging.NewComponentLogger(logger, "cli"),
		duration: assetloader.DurationUnknown,
		counters: make(map[assetloader.TrackType]*trackCounter, 2),
		rtp:      make(map[assetloader.TrackType]*rtpTrack, 2),
		done:     make(chan struct{}),
	}
}

func (l *sessionListener) Done() <-chan struct{} {
	return l.done
}

func (l *sessionListener) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *sessionListener) OnDuration(d assetloader.Duration) {
	l.mu.Lock()
	l.duration = d
	l.mu.Unlock()
	l.logger.Info("asset duration", logging.String("duration", d.String()))
}

func (l *sessionListener) OnTrackCount(n int) {
	l.mu.Lock()
	l.declared = n
	l.mu.Unlock()
	l.logger.Info("asset tracks", logging.Int("count", n))
}

func (l *sessionListener) OnTrackAdded(track assetloader.Track) (assetloader.SampleConsumer, error) {
	attrs := append(logging.TrackAttrs(track.Index, track.Format.Type.String(), track.Format.Codec),
		logging.String("format", track.Format.String()),
		logging.String("supported", track.Supported.String()),
	)
	l.logger.Info("track added", logging.Args(attrs...)...)
	if l.rtpDir != "" && rtpsink.Supports(track.Format.Codec) && track.Supported.Has(capability.Encoded) {
		return l.newRTPTrack(track)
	}
	counter := &trackCounter{want: l.requirements[track.Format.Type], onEnd: l.trackEnded}
	l.mu.Lock()
	l.counters[track.Format.Type] = counter
	l.mu.Unlock()
	return counter, nil
}

func (l *sessionListener) newRTPTrack(track assetloader.Track) (assetloader.SampleConsumer, error) {
	path := filepath.Join(l.rtpDir, fmt.Sprintf("%s-%d.rtp", track.Format.Type, track.Index))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create rtp output: %w", err)
	}
	sink, err := rtpsink.New(file, rtpsink.Options{Codec: track.Format.Codec, Logger: l.logger})
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	rt := &rtpTrack{Sink: sink, file: file, path: path, onEnd: l.trackEnded}
	l.mu.Lock()
	l.rtp[track.Format.Type] = rt
	l.mu.Unlock()
	return rt, nil
}

func (l *sessionListener) trackEnded() {
	l.mu.Lock()
	l.ended++
	all := l.declared > 0 && l.ended >= l.declared
	l.mu.Unlock()
	if all {
		l.finish()
	}
}

func (l *sessionListener) OnError(err *assetloader.Error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	l.finish()
}

// completed reports whether every declared track reached end of stream
// without an error.
func (l *sessionListener) completed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err == nil && l.declared > 0 && l.ended >= l.declared
}

func (l *sessionListener) failure() *assetloader.Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// closeOutputs closes RTP files of tracks that never ended.
func (l *sessionListener) closeOutputs() {
	l.mu.Lock()
	tracks := make([]*rtpTrack, 0, len(l.rtp))
	for _, rt := range l.rtp {
		tracks = append(tracks, rt)
	}
	l.mu.Unlock()
	for _, rt := range tracks {
		rt.close()
	}
}

// delivered counts samples handed to every consumer so far.
func (l *sessionListener) delivered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, counter := range l.counters {
		samples, _ := counter.counts()
		total += samples
	}
	for _, rt := range l.rtp {
		total += rt.Stats().Samples
	}
	return total
}

type trackSummary struct {
	samples int
	bytes   int64
	target  string
}

func (l *sessionListener) summary(t assetloader.TrackType) trackSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rt, ok := l.rtp[t]; ok {
		stats := rt.Stats()
		return trackSummary{samples: stats.Samples, bytes: stats.Bytes, target: rt.path}
	}
	if counter, ok := l.counters[t]; ok {
		samples, bytes := counter.counts()
		return trackSummary{samples: samples, bytes: bytes}
	}
	return trackSummary{}
}

var _ assetloader.Listener = (*sessionListener)(nil)
