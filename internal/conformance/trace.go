package conformance

import (
	"fmt"
)

// CheckTrace verifies that events follow the protocol order: one duration,
// one track count n >= 1, then exactly n track events, with at most one error
// which must be the last event. An error may cut the sequence short at any
// point.
func CheckTrace(events []Event) error {
	declared := -1
	tracks := 0
	for i, event := range events {
		if event.Kind == EventError {
			if i != len(events)-1 {
				return fmt.Errorf("event %d: error followed by %s", i, events[i+1].Kind)
			}
			if event.Err == nil {
				return fmt.Errorf("event %d: error without payload", i)
			}
			return nil
		}
		switch i {
		case 0:
			if event.Kind != EventDuration {
				return fmt.Errorf("event 0: expected duration, got %s", event.Kind)
			}
		case 1:
			if event.Kind != EventTrackCount {
				return fmt.Errorf("event 1: expected track_count, got %s", event.Kind)
			}
			if event.Count < 1 {
				return fmt.Errorf("event 1: track count %d below 1", event.Count)
			}
			declared = event.Count
		default:
			if event.Kind != EventTrackAdded {
				return fmt.Errorf("event %d: expected track_added, got %s", i, event.Kind)
			}
			tracks++
			if tracks > declared {
				return fmt.Errorf("event %d: track %d exceeds declared count %d", i, tracks, declared)
			}
		}
	}
	if len(events) == 0 {
		return fmt.Errorf("no events recorded")
	}
	if declared < 0 {
		return fmt.Errorf("trace ended before track count")
	}
	if tracks != declared {
		return fmt.Errorf("trace has %d track events, declared %d", tracks, declared)
	}
	return nil
}

// CheckProgress verifies that polled percentages stay within 0..100 and never
// decrease.
func CheckProgress(samples []int) error {
	last := -1
	for i, percent := range samples {
		if percent < 0 || percent > 100 {
			return fmt.Errorf("progress sample %d: %d out of range", i, percent)
		}
		if percent < last {
			return fmt.Errorf("progress sample %d: %d after %d", i, percent, last)
		}
		last = percent
	}
	return nil
}
