package assetloader

import (
	"fmt"
	"maps"
	"strings"
	"sync"
)

// DecoderRegistry records which decoder serves each track type. Only tracks
// that instantiate a decoder have an entry.
type DecoderRegistry struct {
	mu    sync.RWMutex
	names map[TrackType]string
}

// Register adds the decoder name for t. Keys are unique.
func (r *DecoderRegistry) Register(t TrackType, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("register decoder for %s: empty name", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.names[t]; ok {
		return fmt.Errorf("register decoder for %s: already registered as %q", t, existing)
	}
	if r.names == nil {
		r.names = make(map[TrackType]string, 2)
	}
	r.names[t] = name
	return nil
}

// Snapshot returns a copy of the current entries.
func (r *DecoderRegistry) Snapshot() map[TrackType]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[TrackType]string, len(r.names))
	maps.Copy(out, r.names)
	return out
}
