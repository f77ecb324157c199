package assetloader

import (
	"context"
	"sync"

	"ingest/internal/capability"
)

// gate fronts a Listener's consumer. It refuses samples once the session has
// ended and reports ordering bugs through the Guard.
type gate struct {
	guard  *Guard
	track  Track
	output capability.OutputType
	next   SampleConsumer

	mu      sync.Mutex
	last    int64
	started bool
	ended   bool
}

func (c *gate) ExpectedOutput() capability.OutputType {
	return c.output
}

func (c *gate) QueueSample(ctx context.Context, sample Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.admit("sample"); err != nil {
		return err
	}
	switch {
	case sample.TimeUs < 0:
		return c.guard.reject(violation("sample", "%s track sample at %dus is negative after offset", c.track.Format.Type, sample.TimeUs))
	case c.started && sample.TimeUs < c.last:
		return c.guard.reject(violation("sample", "%s track sample at %dus precedes %dus", c.track.Format.Type, sample.TimeUs, c.last))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.started = true
	c.last = sample.TimeUs
	sample.Output = c.output
	return c.next.QueueSample(ctx, sample)
}

func (c *gate) EndOfStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.admit("end_of_stream"); err != nil {
		return err
	}
	c.ended = true
	c.guard.trackEnded()
	return c.next.EndOfStream()
}

func (c *gate) admit(op string) error {
	state := c.guard.State()
	switch {
	case state.Terminal():
		return ErrReleased
	case state != StateActive:
		return c.guard.reject(violation(op, "%s track delivery in state %s", c.track.Format.Type, state))
	case c.ended:
		return c.guard.reject(violation(op, "%s track delivery after end of stream", c.track.Format.Type))
	}
	return nil
}
