package logging

import "testing"

func TestNewProgressSamplerDefaultsBucket(t *testing.T) {
	for _, size := range []float64{0, -3} {
		if s := NewProgressSampler(size); s.bucketSize != 10 {
			t.Fatalf("NewProgressSampler(%v).bucketSize = %v, want 10", size, s.bucketSize)
		}
	}
}

func TestProgressSamplerEmitsOncePerBucket(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		percent float64
		want    bool
	}{
		{-1, false},
		{0, true},
		{10, false},
		{24.9, false},
		{25, true},
		{26, false},
		{80, true},
		{150, true},
		{100, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
	s.Reset()
	if !s.ShouldLog(50) {
		t.Fatal("expected emit after reset")
	}
}

func TestNilProgressSamplerAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(1) {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}
