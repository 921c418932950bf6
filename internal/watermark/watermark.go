// Package watermark deduplicates a polled, always-growing event log by
// remembering the highest sequence id already processed.
package watermark

import (
	"sort"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
)

// Verdict is the outcome of Admit.
type Verdict int

const (
	Stale Verdict = iota
	New
)

func (v Verdict) String() string {
	if v == New {
		return "new"
	}
	return "stale"
}

// Watermark is owned by a single poll loop and is not safe for concurrent use.
// The zero value is an empty watermark that admits every id.
type Watermark struct {
	last int64
	set  bool
}

// Admit classifies seq against the watermark. It does not mutate it.
func (w *Watermark) Admit(seq int64) Verdict {
	if w.set && seq <= w.last {
		return Stale
	}
	return New
}

// Advance raises the watermark to seq; lower values are ignored.
func (w *Watermark) Advance(seq int64) {
	if !w.set || seq > w.last {
		w.last = seq
		w.set = true
	}
}

// Value returns the current watermark and whether one has been set.
func (w *Watermark) Value() (int64, bool) {
	return w.last, w.set
}

// Reset empties the watermark so every id is admitted again.
func (w *Watermark) Reset() {
	*w = Watermark{}
}

// Filter classifies the whole batch first, then advances once to the highest
// new id. New events come back sorted by ascending sequence id; duplicates of
// the same id inside one batch are kept once.
func (w *Watermark) Filter(batch []event.GameEvent) []event.GameEvent {
	var (
		fresh []event.GameEvent
		top   int64
		seen  = make(map[int64]struct{})
	)
	for _, ev := range batch {
		if w.Admit(ev.Seq) != New {
			continue
		}
		if _, dup := seen[ev.Seq]; dup {
			continue
		}
		seen[ev.Seq] = struct{}{}
		if len(fresh) == 0 || ev.Seq > top {
			top = ev.Seq
		}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return nil
	}
	w.Advance(top)
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Seq < fresh[j].Seq })
	return fresh
}
