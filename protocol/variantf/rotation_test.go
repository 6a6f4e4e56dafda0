package variantf

import "testing"

func TestRoundRPMSnapsToStandardSpeeds(t *testing.T) {
	cases := []struct {
		raw  float64
		want uint16
	}{
		{280, 300},
		{300, 300},
		{329, 300},
		{330, 360},
		{360, 360},
		{400, 360},
	}
	for _, c := range cases {
		if got := roundRPM(c.raw); got != c.want {
			t.Errorf("roundRPM(%v) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestRoundBitRateSnapsToStandardRates(t *testing.T) {
	cases := []struct {
		raw  float64
		want uint16
	}{
		{200, 250},
		{374, 250},
		{375, 500},
		{600, 500},
		{749, 500},
		{750, 1000},
		{1200, 1000},
	}
	for _, c := range cases {
		if got := roundBitRate(c.raw); got != c.want {
			t.Errorf("roundBitRate(%v) = %d, want %d", c.raw, got, c.want)
		}
	}
}
