package splicer

import (
	"testing"

	"github.com/sergev/floppybridge/codec"
)

type fakeSink struct {
	written      []codec.Symbol
	revolutions  int
	refuseAfter  int // 0 = never refuse
}

func (f *fakeSink) WriteSymbol(sym codec.Symbol) bool {
	f.written = append(f.written, sym)
	if f.refuseAfter > 0 && len(f.written) >= f.refuseAfter {
		return false
	}
	return true
}

func (f *fakeSink) EndRevolution() {
	f.revolutions++
}

func patternSymbol(i int) codec.Symbol {
	return codec.Symbol{RunLength: uint8(i % 4), Speed: 1000}
}

func TestSplicerNoSymbolLossBeforeSecondIndex(t *testing.T) {
	sink := &fakeSink{}
	sp := New(sink, nil)

	// First symbol carries the index pulse that opens the revolution.
	first := codec.Symbol{RunLength: 0, AtIndex: true}
	if !sp.Feed(first) {
		t.Fatalf("Feed of the opening index symbol should not fail")
	}

	const fed = 200
	for i := 0; i < fed; i++ {
		sp.Feed(patternSymbol(i))
	}

	total := len(sink.written) + len(sp.current) + len(sp.future)
	if total != fed+1 {
		t.Errorf("symbol accounting mismatch: sink=%d current=%d future=%d, want total %d",
			len(sink.written), len(sp.current), len(sp.future), fed+1)
	}

	if sink.revolutions != 0 {
		t.Errorf("no second index pulse was fed, EndRevolution should not have been called, got %d", sink.revolutions)
	}
}

func TestSplicerFingerprintCapturedAfterWSymbols(t *testing.T) {
	sink := &fakeSink{}
	sp := New(sink, nil)

	sp.Feed(codec.Symbol{AtIndex: true})
	if fp := sp.Fingerprint(); fp != nil {
		t.Fatalf("Fingerprint() should be nil before W symbols are fed, got %v", fp)
	}

	for i := 0; i < W; i++ {
		sp.Feed(patternSymbol(i))
	}
	fp := sp.Fingerprint()
	if len(fp) != W {
		t.Fatalf("Fingerprint() length = %d, want %d", len(fp), W)
	}
	for i, v := range fp {
		if v != uint8(i%4) {
			t.Errorf("fingerprint[%d] = %d, want %d", i, v, i%4)
		}
	}
}

func TestSplicerEndsRevolutionOnSecondIndex(t *testing.T) {
	sink := &fakeSink{}
	sp := New(sink, nil)

	sp.Feed(codec.Symbol{AtIndex: true})
	const period = 100
	for i := 0; i < period; i++ {
		sym := patternSymbol(i)
		if i == period-1 {
			sym.AtIndex = true
		}
		sp.Feed(sym)
	}

	if sink.revolutions != 1 {
		t.Fatalf("expected exactly one EndRevolution call, got %d", sink.revolutions)
	}
	if len(sink.written) == 0 {
		t.Errorf("expected some symbols to have been written to the sink")
	}
}

func TestSplicerCarriesLeftoverAcrossMultipleRevolutions(t *testing.T) {
	sink := &fakeSink{}
	sp := New(sink, nil)

	sp.Feed(codec.Symbol{AtIndex: true})

	const period = 100
	const revolutions = 4
	fed := 0
	for r := 0; r < revolutions; r++ {
		for i := 0; i < period; i++ {
			sym := patternSymbol(fed)
			if i == period-1 {
				sym.AtIndex = true
			}
			sp.Feed(sym)
			fed++
		}
	}

	if sink.revolutions != revolutions {
		t.Fatalf("expected %d EndRevolution calls, got %d", revolutions, sink.revolutions)
	}

	total := len(sink.written) + len(sp.current) + len(sp.future)
	if total != fed+1 {
		t.Errorf("symbols lost across revolution boundaries: sink=%d current=%d future=%d, want total %d",
			len(sink.written), len(sp.current), len(sp.future), fed+1)
	}
}

func TestSplicerSinkRefusalStopsFeed(t *testing.T) {
	sink := &fakeSink{refuseAfter: 1}
	sp := New(sink, nil)

	sp.Feed(codec.Symbol{AtIndex: true})
	ok := true
	for i := 0; i < queueCap*3 && ok; i++ {
		ok = sp.Feed(patternSymbol(i))
	}
	if ok {
		t.Errorf("Feed should eventually return false once the sink refuses a write")
	}
}

func TestSplicerSeededFingerprintEnablesOldSequence(t *testing.T) {
	sink := &fakeSink{}
	seed := make([]uint8, W)
	for i := range seed {
		seed[i] = uint8(i % 4)
	}
	sp := New(sink, seed)
	if !sp.oldSequenceEnabled {
		t.Fatalf("a full-length seed fingerprint should enable the carried-over sequence")
	}
	if got := sp.Fingerprint(); len(got) != W {
		t.Errorf("Fingerprint() after seeding should return the seed, len=%d", len(got))
	}
}

func TestSplicerShortSeedDoesNotEnableOldSequence(t *testing.T) {
	sink := &fakeSink{}
	sp := New(sink, make([]uint8, W-1))
	if sp.oldSequenceEnabled {
		t.Errorf("a short seed fingerprint must not enable the carried-over sequence")
	}
}
