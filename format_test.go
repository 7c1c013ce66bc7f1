package main

import (
	"math"
	"testing"
)

func TestReadableRateLadder(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00 H"},
		{1, "1.00 H"},
		{999, "999.00 H"},
		{1000, "1.00 KH"},
		{1100, "1.10 KH"},
		{1000 * 1000, "1.00 MH"},
		{1000 * 1000 * 1000, "1.00 GH"},
		{math.Pow(1000, 4), "1.00 TH"},
		{math.Pow(1000, 5), "1.00 PH"},
		{math.Pow(1000, 6), "1000.00 PH"},
		{1234567, "1.23 MH"},
	}
	for _, tt := range tests {
		if got := readableRate(tt.in); got != tt.want {
			t.Fatalf("readableRate(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadableRateClampsInvalidInput(t *testing.T) {
	for _, v := range []float64{-5, math.NaN()} {
		if got := readableRate(v); got != "0.00 H" {
			t.Fatalf("readableRate(%v) = %q, want 0.00 H", v, got)
		}
	}
}
