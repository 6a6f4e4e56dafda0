package splicer

import (
	"reflect"
	"testing"

	"github.com/sergev/floppybridge/codec"
)

func symsFromRunLengths(runs []uint8) []codec.Symbol {
	out := make([]codec.Symbol, len(runs))
	for i, r := range runs {
		out[i] = codec.Symbol{RunLength: r}
	}
	return out
}

func TestCorrelateFindsExactAlignment(t *testing.T) {
	fingerprint := make([]uint8, W)
	for i := range fingerprint {
		fingerprint[i] = uint8(i % 4)
	}

	// Place the fingerprint at offset 10 in a longer noisy area.
	area := make([]uint8, 10+W+10)
	for i := range area {
		area[i] = 3 // noise value distinct from the fingerprint pattern at most offsets
	}
	copy(area[10:], fingerprint)

	cut := correlate(fingerprint, symsFromRunLengths(area))
	want := 10 + W
	if cut != want {
		t.Errorf("correlate() = %d, want %d", cut, want)
	}
}

func TestCorrelateShortAreaReturnsLength(t *testing.T) {
	fingerprint := make([]uint8, W)
	area := symsFromRunLengths(make([]uint8, W-1))
	if got := correlate(fingerprint, area); got != len(area) {
		t.Errorf("correlate() on short area = %d, want %d", got, len(area))
	}
}

func TestFanOutStartsAtMidAndCoversRange(t *testing.T) {
	order := fanOut(5, 10)
	if order[0] != 5 {
		t.Fatalf("fanOut should start at mid, got %d", order[0])
	}

	seen := map[int]bool{}
	for _, v := range order {
		if v < 0 || v > 10 {
			t.Errorf("fanOut produced out-of-range start %d", v)
		}
		seen[v] = true
	}
	for i := 0; i <= 10; i++ {
		if !seen[i] {
			t.Errorf("fanOut never visited position %d", i)
		}
	}
}

func TestFanOutClampsMidOutsideRange(t *testing.T) {
	order := fanOut(-5, 3)
	if order[0] != 0 {
		t.Errorf("fanOut should clamp negative mid to 0, got %d", order[0])
	}

	order = fanOut(99, 3)
	if order[0] != 3 {
		t.Errorf("fanOut should clamp mid above maxStart, got %d", order[0])
	}
}

func TestFanOutEmptyRange(t *testing.T) {
	if got := fanOut(0, -1); got != nil {
		t.Errorf("fanOut with maxStart < 0 should return nil, got %v", got)
	}
}

func TestFanOutOrderIsSymmetricAroundMid(t *testing.T) {
	order := fanOut(4, 8)
	want := []int{4, 3, 5, 2, 6, 1, 7, 0, 8}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("fanOut(4,8) = %v, want %v", order, want)
	}
}
