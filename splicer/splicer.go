// Package splicer turns a raw, free-running bit-cell symbol stream into a
// sequence of complete, non-overlapping disk revolutions.
//
// A drive's index pulse marks roughly one revolution, but drive speed
// varies and the controller's own index detection jitters by a cell or
// two, so consecutive "revolutions" read off the wire overlap or gap by a
// handful of symbols at the boundary. The splicer fixes that: it keeps a
// short fingerprint of the first W symbols following a chosen origin
// index, then on every later index pulse slides a correlator over the
// symbols straddling that pulse to find where the fingerprint actually
// lines up, and cuts the stream there.
package splicer

import (
	"fmt"

	"github.com/sergev/floppybridge/codec"
)

// DebugFlag gates trace output for revolution cuts. Enable for debug.
const DebugFlag = false

// W is the fingerprint length in symbols (OVERLAP_WINDOW_SIZE).
const W = 32

// queueCap bounds how many symbols the current/old FIFOs hold before the
// splicer must drain the oldest one; 4W symbols are ever resident across
// old+current+future at once.
const queueCap = 2 * W

// SymbolSink receives the revolution-aligned symbol stream. WriteSymbol
// returns false to abort the stream early (e.g. the background worker has
// been asked to move on to a different cylinder).
type SymbolSink interface {
	WriteSymbol(sym codec.Symbol) bool
	EndRevolution()
}

// Splicer holds the sliding-window state for a single track read. A fresh
// one is created for every read stream; New's startFingerprint argument
// seeds it with the previous read's fingerprint so the first revolution can
// also be spliced instead of taken on faith.
type Splicer struct {
	sink SymbolSink

	fingerprint        []uint8
	oldSequenceEnabled bool

	old     []codec.Symbol
	current []codec.Symbol
	future  []codec.Symbol

	startIndexFound bool
	skipIndex       int
}

// New creates a splicer. startFingerprint, if it holds at least W
// run-length codes, lets the first revolution be cut against a known-good
// alignment instead of the free first-index fallback.
func New(sink SymbolSink, startFingerprint []uint8) *Splicer {
	s := &Splicer{sink: sink}
	if len(startFingerprint) >= W {
		s.fingerprint = append([]uint8(nil), startFingerprint[:W]...)
		s.oldSequenceEnabled = true
	}
	return s
}

// Fingerprint returns the fingerprint captured for the most recent
// revolution cut, to seed the next track's splicer. Returns nil if a full
// window hasn't been captured yet.
func (s *Splicer) Fingerprint() []uint8 {
	if len(s.fingerprint) < W {
		return nil
	}
	out := make([]uint8, W)
	copy(out, s.fingerprint)
	return out
}

// Feed processes one decoded symbol. It returns false once the sink has
// asked for the stream to stop.
func (s *Splicer) Feed(sym codec.Symbol) bool {
	if s.skipIndex > 0 {
		s.skipIndex--
	}
	if !s.startIndexFound {
		return s.feedIndexSearch(sym)
	}
	return s.feedStreamAndCut(sym)
}

// feedIndexSearch runs before any revolution has been opened: it waits for
// an index pulse to use as the origin, splicing against a carried-over
// fingerprint when one is available and old has filled its window.
func (s *Splicer) feedIndexSearch(sym codec.Symbol) bool {
	if sym.AtIndex && s.skipIndex == 0 {
		if s.oldSequenceEnabled && len(s.old) >= queueCap {
			area := append(append([]codec.Symbol{}, s.old...), s.future...)
			drop := correlate(s.fingerprint, area)

			for drop > 0 && len(s.old) > 0 {
				s.old = s.old[1:]
				drop--
			}
			for drop > 0 && len(s.future) > 0 {
				s.future = s.future[1:]
				drop--
			}
			s.current = append(s.current, s.old...)
			s.old = nil
			s.startIndexFound = true
			return true
		}

		s.fingerprint = s.fingerprint[:0]
		s.oldSequenceEnabled = false
		s.current = append(s.current, sym)
		s.startIndexFound = true
		return true
	}

	if s.oldSequenceEnabled {
		s.old = pushBounded(s.old, sym)
	}
	return true
}

// feedStreamAndCut runs once a revolution is open: it accumulates the
// fingerprint for this revolution, drains symbols out to the sink as the
// future/current window fills, and on the next index pulse finds the best
// cut point and starts a new revolution.
func (s *Splicer) feedStreamAndCut(sym codec.Symbol) bool {
	s.future = append(s.future, sym)
	if len(s.fingerprint) < W {
		s.fingerprint = append(s.fingerprint, sym.RunLength)
	}

	ok := true
	for len(s.future) > queueCap {
		s.current = append(s.current, s.future[0])
		s.future = s.future[1:]
	}
	for len(s.current) > queueCap {
		if !s.sink.WriteSymbol(s.current[0]) {
			ok = false
		}
		s.current = s.current[1:]
	}

	if sym.AtIndex && s.skipIndex == 0 {
		area := append(append([]codec.Symbol{}, s.current...), s.future...)
		cut := correlate(s.fingerprint, area)

		emitted := 0
		for emitted < cut && len(s.current) > 0 {
			if !s.sink.WriteSymbol(s.current[0]) {
				ok = false
			}
			s.current = s.current[1:]
			emitted++
		}
		for emitted < cut && len(s.future) > 0 {
			if !s.sink.WriteSymbol(s.future[0]) {
				ok = false
			}
			s.future = s.future[1:]
			emitted++
		}
		s.sink.EndRevolution()
		if DebugFlag {
			fmt.Printf("splicer: cut at %d symbols, %d carried into next revolution\n", emitted, len(s.future))
		}

		s.current = append(s.current, s.future...)
		s.future = s.future[:0]
		s.fingerprint = s.fingerprint[:0]
		s.skipIndex = len(s.current) + 1
	}

	return ok
}

func pushBounded(q []codec.Symbol, sym codec.Symbol) []codec.Symbol {
	q = append(q, sym)
	if len(q) > queueCap {
		q = q[len(q)-queueCap:]
	}
	return q
}
