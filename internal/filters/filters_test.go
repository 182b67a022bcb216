package filters

import (
	"math"
	"testing"
)

func TestLowPassPassThroughWhenDegenerate(t *testing.T) {
	lp := NewLowPass(0, 0.01)
	lp.Apply(10)
	got := lp.Apply(50)
	if got != 10 {
		t.Fatalf("expected pass-through holding 10, got %v", got)
	}

	lp2 := NewLowPass(5, 0)
	lp2.Apply(10)
	got2 := lp2.Apply(50)
	if got2 != 10 {
		t.Fatalf("expected pass-through holding 10 with dt=0, got %v", got2)
	}
}

func TestLowPassConverges(t *testing.T) {
	lp := NewLowPass(10, 0.001)
	lp.Apply(0)
	var last float64
	for i := 0; i < 10000; i++ {
		last = lp.Apply(100)
	}
	if math.Abs(last-100) > 0.5 {
		t.Fatalf("expected convergence near 100, got %v", last)
	}
}

func TestRollingWindowFirstValueUnchanged(t *testing.T) {
	w := NewRollingWindow()
	out := w.Apply([]float64{1, 2, 3})
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Fatalf("first call should pass through unchanged: %v", out)
	}
}

func TestRollingWindowAveragesSecondValue(t *testing.T) {
	w := NewRollingWindow()
	w.Apply([]float64{10, 20})
	out := w.Apply([]float64{30, 40})
	if out[0] != 20 || out[1] != 30 {
		t.Fatalf("expected averaged values [20 30], got %v", out)
	}
}

func TestRollingWindowLengthMismatchPassesThrough(t *testing.T) {
	w := NewRollingWindow()
	w.Apply([]float64{1, 2, 3})
	out := w.Apply([]float64{10, 20})
	if out[0] != 10 || out[1] != 20 {
		t.Fatalf("length mismatch should pass through unchanged: %v", out)
	}
}

func TestOversampleAverage(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7}
	got := OversampleAverage(samples)
	if got != 4 {
		t.Fatalf("expected mean 4, got %v", got)
	}
}

func TestRoundSignificantFourDigits(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{123456.789, 123500},
		{0.0123456, 0.01235},
		{9.99949, 9.999},
		{0, 0},
	}
	for _, c := range cases {
		got := RoundSignificant(c.in, 4)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("RoundSignificant(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestOversampleMatrixPerChannel(t *testing.T) {
	burst := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
	}
	got := OversampleMatrix(burst)
	if len(got) != 2 || got[0] != 2 || got[1] != 20 {
		t.Fatalf("unexpected per-channel means: %v", got)
	}
}
