package probeloader

import (
	"container/heap"

	"ingest/internal/assetloader"
)

// reorderer restores presentation order for packets listed in decode order.
// It holds up to window samples and releases the earliest once full. Samples
// that still arrive too late are clamped to the last released time so the
// output never goes backwards.
type reorderer struct {
	window  int
	pending sampleHeap
	seq     uint64
	last    int64
	started bool
	clamped int
}

func newReorderer(window int) *reorderer {
	if window < 1 {
		window = 1
	}
	return &reorderer{window: window}
}

// push adds s and returns the samples ready for delivery.
func (r *reorderer) push(s assetloader.Sample) []assetloader.Sample {
	heap.Push(&r.pending, queued{sample: s, seq: r.seq})
	r.seq++
	var ready []assetloader.Sample
	for r.pending.Len() > r.window {
		ready = append(ready, r.pop())
	}
	return ready
}

// flush drains everything still buffered.
func (r *reorderer) flush() []assetloader.Sample {
	ready := make([]assetloader.Sample, 0, r.pending.Len())
	for r.pending.Len() > 0 {
		ready = append(ready, r.pop())
	}
	return ready
}

func (r *reorderer) pop() assetloader.Sample {
	s := heap.Pop(&r.pending).(queued).sample
	if r.started && s.TimeUs < r.last {
		s.TimeUs = r.last
		r.clamped++
	}
	r.started = true
	r.last = s.TimeUs
	return s
}

type queued struct {
	sample assetloader.Sample
	seq    uint64
}

type sampleHeap []queued

func (h sampleHeap) Len() int { return len(h) }

func (h sampleHeap) Less(i, j int) bool {
	if h[i].sample.TimeUs != h[j].sample.TimeUs {
		return h[i].sample.TimeUs < h[j].sample.TimeUs
	}
	return h[i].seq < h[j].seq
}

func (h sampleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sampleHeap) Push(x any) { *h = append(*h, x.(queued)) }

func (h *sampleHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
