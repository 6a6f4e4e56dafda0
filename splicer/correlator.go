package splicer

import "github.com/sergev/floppybridge/codec"

// correlate locates the best alignment of fingerprint (length W) within
// area, scanning candidate start positions fanning outward from the
// midpoint so the closest-to-expected cut wins ties. It returns the
// number of symbols from the head of area up to and including the cut.
func correlate(fingerprint []uint8, area []codec.Symbol) int {
	w := len(fingerprint)
	l := len(area)
	if l < w {
		return l
	}

	maxStart := l - w
	mid := maxStart / 2

	bestStart := mid
	bestScore := -1
	for _, start := range fanOut(mid, maxStart) {
		score := 0
		for i := 0; i < w; i++ {
			if area[start+i].RunLength == fingerprint[i] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestStart = start
		}
		if bestScore == w {
			break
		}
	}
	return bestStart + w
}

// fanOut lists valid start positions in [0, maxStart], ordered by
// increasing distance from mid: mid, mid-1, mid+1, mid-2, mid+2, ...
func fanOut(mid, maxStart int) []int {
	if maxStart < 0 {
		return nil
	}
	if mid < 0 {
		mid = 0
	}
	if mid > maxStart {
		mid = maxStart
	}

	order := make([]int, 0, maxStart+1)
	order = append(order, mid)
	for d := 1; mid-d >= 0 || mid+d <= maxStart; d++ {
		if mid-d >= 0 {
			order = append(order, mid-d)
		}
		if mid+d <= maxStart {
			order = append(order, mid+d)
		}
	}
	return order
}
