package core

import "testing"

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	if have := m.FrameTime(); have < 15.99 || have > 16.01 {
		t.Fatalf("frame time: have %f, want 16", have)
	}
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 0.01s frames: the accumulated time crosses one second on the 101st frame.
	for i := 0; i < 101; i++ {
		m.Update(0.01)
	}
	if have := m.FPS(); have != 100 {
		t.Fatalf("fps: have %f, want 100", have)
	}
}
