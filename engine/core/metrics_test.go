package core

import (
	"math"
	"testing"
)

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		samples []float64
		want    float64
	}{
		{"single", 4, []float64{2}, 2},
		{"partial window", 4, []float64{1, 2, 3}, 2},
		{"full window", 3, []float64{3, 6, 9}, 6},
		{"sliding window", 2, []float64{1, 2, 4, 8}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg := NewMovingAverage[float64](tt.limit)
			for _, s := range tt.samples {
				avg.Add(s)
			}
			if math.Abs(avg.Average()-tt.want) > 1e-9 {
				t.Fatalf("got %f, want %f", avg.Average(), tt.want)
			}
		})
	}
}

func TestMovingAverageReset(t *testing.T) {
	avg := NewMovingAverage[float64](2)
	avg.Add(10)
	avg.Reset()
	if avg.Average() != 0 {
		t.Fatalf("average not reset: %f", avg.Average())
	}
	if got := avg.Add(4); got != 4 {
		t.Fatalf("got %f after reset", got)
	}
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < 61; i++ {
		m.Update(1.0 / 60.0)
	}
	if m.FPS() < 59 || m.FPS() > 61 {
		t.Fatalf("unexpected fps %f", m.FPS())
	}
	if math.Abs(m.FrameTime()-1000.0/60.0) > 1e-6 {
		t.Fatalf("unexpected frame time %f", m.FrameTime())
	}
}
