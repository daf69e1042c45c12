// Package inventory - Running per-label item counts and their editable view.
package inventory

import (
	"github.com/nvr-ai/go-pantry/detector"
)

// Entry is the authoritative count for one label.
type Entry struct {
	Label string
	Count int
}

// Accumulator owns the mapping from item label to detected count. Counts are
// additive across captures and only go away on Reset.
//
// An Accumulator is not safe for concurrent use. It is owned by a single
// controller goroutine.
type Accumulator struct {
	counts map[string]int
	order  []string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{counts: make(map[string]int)}
}

// Accumulate adds one to the count of each detection's label. Several
// detections of the same label in one call each count separately.
//
// Arguments:
//   - detections: The detections of one capture, already filtered by confidence.
//
// Returns:
//   - []Entry: The updated mapping in first-seen order.
func (a *Accumulator) Accumulate(detections []detector.Detection) []Entry {
	for i := range detections {
		label := detections[i].Label
		if _, ok := a.counts[label]; !ok {
			a.order = append(a.order, label)
		}
		a.counts[label]++
	}
	return a.Entries()
}

// Reset empties the mapping.
func (a *Accumulator) Reset() []Entry {
	a.counts = make(map[string]int)
	a.order = nil
	return a.Entries()
}

// Entries returns a copy of the mapping in first-seen order.
func (a *Accumulator) Entries() []Entry {
	entries := make([]Entry, 0, len(a.order))
	for _, label := range a.order {
		entries = append(entries, Entry{Label: label, Count: a.counts[label]})
	}
	return entries
}

// Count returns the detected count for label, zero if it was never seen.
func (a *Accumulator) Count(label string) int {
	return a.counts[label]
}

// Len returns the number of distinct labels.
func (a *Accumulator) Len() int {
	return len(a.order)
}
