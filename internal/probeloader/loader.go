package probeloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"ingest/internal/assetloader"
	"ingest/internal/capability"
	"ingest/internal/logging"
	"ingest/internal/media/ffprobe"
	"ingest/internal/preflight"
)

// DefaultReorderWindow is used when Options.ReorderWindow is not positive.
const DefaultReorderWindow = 16

const trackQueueDepth = 64

// ErrAssetBusy reports that another session holds the asset's lock.
var ErrAssetBusy = errors.New("asset is locked by another session")

// Options configures the probe loader factory.
type Options struct {
	FFProbeBinary string
	// LockDir holds per-asset lock files. Empty disables locking.
	LockDir       string
	ReorderWindow int
	// WithData requests packet payloads from ffprobe.
	WithData bool
	Logger   *slog.Logger
}

// Factory creates ffprobe-backed loaders.
type Factory struct {
	opts Options
}

// NewFactory returns a Factory using opts.
func NewFactory(opts Options) *Factory {
	if opts.ReorderWindow <= 0 {
		opts.ReorderWindow = DefaultReorderWindow
	}
	return &Factory{opts: opts}
}

// NewLoader implements assetloader.Factory.
func (f *Factory) NewLoader(ctx context.Context, asset assetloader.Asset, listener assetloader.Listener) (assetloader.Loader, error) {
	path, local := resolvePath(asset.URI)
	if path == "" {
		return nil, errors.New("probe loader: empty asset uri")
	}
	if listener == nil {
		return nil, errors.New("probe loader: nil listener")
	}
	d := &driver{
		opts:  f.opts,
		asset: asset,
		path:  path,
		local: local,
	}
	logger := f.opts.Logger
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldAsset, path))
	}
	return assetloader.NewSession(ctx, d, listener, assetloader.WithLogger(logger)), nil
}

var _ assetloader.Factory = (*Factory)(nil)

// resolvePath strips a file:// scheme. Other schemes are passed to ffprobe
// untouched and reported as non-local.
func resolvePath(uri string) (string, bool) {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, "file://"); ok {
		return rest, true
	}
	if strings.Contains(uri, "://") {
		return uri, false
	}
	return uri, true
}

// driver runs discovery and packet delivery for one session.
type driver struct {
	opts  Options
	asset assetloader.Asset
	path  string
	local bool

	mu   sync.Mutex
	lock *flock.Flock
}

type deliveryTrack struct {
	planned  plannedTrack
	consumer assetloader.SampleConsumer
	reorder  *reorderer
	queue    chan assetloader.Sample
}

func (d *driver) Run(ctx context.Context, session *assetloader.Session) error {
	logger := session.Logger()

	if d.local {
		if err := preflight.Readable(d.path); err != nil {
			return assetloader.Wrap(assetloader.KindSourceRead, "open", "", err)
		}
		if err := d.acquireLock(); err != nil {
			return assetloader.Wrap(assetloader.KindSourceRead, "lock", "", err)
		}
	}

	result, err := ffprobe.Inspect(ctx, d.opts.FFProbeBinary, d.path)
	if err != nil {
		return assetloader.Wrap(assetloader.KindSourceRead, "probe", "", err)
	}

	duration := assetDuration(result)
	if err := session.ReportDuration(duration); err != nil {
		return err
	}

	planned := planTracks(result, d.asset)
	if len(planned) == 0 {
		return assetloader.Wrap(assetloader.KindSourceRead, "probe", "asset has no usable audio or video stream", nil)
	}
	if err := session.ReportTrackCount(len(planned)); err != nil {
		return err
	}

	tracks := make(map[int]*deliveryTrack, len(planned))
	indexes := make([]int, 0, len(planned))
	for _, p := range planned {
		negotiation, err := session.AddTrack(p.track)
		if err != nil {
			return err
		}
		if negotiation.Output == capability.Decoded {
			if err := session.RegisterDecoder(p.track.Format.Type, decoderName(p.track.Format.Codec)); err != nil {
				return err
			}
		}
		tracks[p.stream.Index] = &deliveryTrack{
			planned:  p,
			consumer: negotiation.Consumer,
			reorder:  newReorderer(d.opts.ReorderWindow),
			queue:    make(chan assetloader.Sample, trackQueueDepth),
		}
		indexes = append(indexes, p.stream.Index)
	}

	for _, t := range tracks {
		session.Go("deliver_"+t.planned.track.Format.Type.String(), func(ctx context.Context) error {
			return deliver(ctx, t)
		})
	}

	readErr := ffprobe.ReadPackets(ctx, d.opts.FFProbeBinary, d.path, ffprobe.PacketOptions{
		WithData: d.opts.WithData,
		Streams:  indexes,
	}, func(pkt ffprobe.Packet) error {
		t, ok := tracks[pkt.StreamIndex]
		if !ok {
			return nil
		}
		if duration.Known() && duration > 0 && pkt.HasPTS {
			session.ReportProgress(int(math.Floor(pkt.PTS * 1e6 / float64(duration) * 100)))
		}
		return enqueue(ctx, t, t.reorder.push(toSample(pkt, t.planned.track.OffsetUs)))
	})

	for _, t := range tracks {
		if readErr != nil {
			break
		}
		readErr = enqueue(ctx, t, t.reorder.flush())
	}
	if readErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return assetloader.Wrap(assetloader.KindSourceRead, "read_packets", "", readErr)
	}

	for _, t := range tracks {
		close(t.queue)
		if t.reorder.clamped > 0 {
			track := t.planned.track
			attrs := append(logging.TrackAttrs(track.Index, track.Format.Type.String(), track.Format.Codec),
				logging.Int("clamped", t.reorder.clamped),
				logging.Int("reorder_window", d.opts.ReorderWindow),
			)
			logger.Debug("late packets clamped", logging.Args(attrs...)...)
		}
	}
	logger.Debug("packet listing complete", logging.Int("track_count", len(tracks)))
	return nil
}

func enqueue(ctx context.Context, t *deliveryTrack, samples []assetloader.Sample) error {
	for _, s := range samples {
		select {
		case t.queue <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// deliver pushes a track's samples into its consumer and signals end of
// stream once the queue is closed after a complete listing.
func deliver(ctx context.Context, t *deliveryTrack) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-t.queue:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return t.consumer.EndOfStream()
			}
			if err := t.consumer.QueueSample(ctx, s); err != nil {
				return fmt.Errorf("queue %s sample at %dus: %w", t.planned.track.Format.Type, s.TimeUs, err)
			}
		}
	}
}

func toSample(pkt ffprobe.Packet, offset int64) assetloader.Sample {
	ts := pkt.DTS
	if pkt.HasPTS {
		ts = pkt.PTS
	}
	size := pkt.Size
	if size == 0 {
		size = len(pkt.Data)
	}
	return assetloader.Sample{
		TimeUs:     max(seconds(ts)+offset, 0),
		DurationUs: seconds(pkt.DurationTime),
		KeyFrame:   pkt.KeyFrame,
		Size:       size,
		Data:       pkt.Data,
	}
}

func (d *driver) acquireLock() error {
	if strings.TrimSpace(d.opts.LockDir) == "" {
		return nil
	}
	lockPath := lockPathFor(d.opts.LockDir, d.path)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetBusy, lockPath)
	}
	d.mu.Lock()
	d.lock = lock
	d.mu.Unlock()
	return nil
}

// lockPathFor names the lock file for an asset by hashing its absolute path.
func lockPathFor(dir, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(dir, hex.EncodeToString(sum[:8])+".lock")
}

func (d *driver) Close() error {
	d.mu.Lock()
	lock := d.lock
	d.lock = nil
	d.mu.Unlock()
	if lock == nil {
		return nil
	}
	if err := lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
