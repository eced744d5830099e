package notify

import (
	"testing"
	"time"
)

func TestNewJobStats_DefaultWindowSize(t *testing.T) {
	t.Parallel()

	js := NewJobStats(0)
	// Should use default window size (100), not panic.
	js.RecordImage(10 * time.Millisecond)

	snap := js.Snapshot()
	if snap.Image.P50 != 10*time.Millisecond {
		t.Errorf("Image P50 = %v, want 10ms", snap.Image.P50)
	}
}

func TestJobStats_RecordAndSnapshot(t *testing.T) {
	t.Parallel()

	js := NewJobStats(100)

	for i := 1; i <= 100; i++ {
		js.RecordImage(time.Duration(i) * time.Millisecond)
	}
	js.RecordAudio(500 * time.Millisecond)
	js.RecordVideo(200 * time.Millisecond)
	js.RecordBuild(60 * time.Second)

	js.IncrCompleted()
	js.IncrCompleted()
	js.IncrCompleted()
	js.IncrFailed()

	snap := js.Snapshot()

	if snap.Completed != 3 {
		t.Errorf("Completed = %d, want 3", snap.Completed)
	}
	if snap.Failed != 1 {
		t.Errorf("Failed = %d, want 1", snap.Failed)
	}

	if snap.Image.P50 != 50*time.Millisecond {
		t.Errorf("Image P50 = %v, want 50ms", snap.Image.P50)
	}
	if snap.Image.P95 != 95*time.Millisecond {
		t.Errorf("Image P95 = %v, want 95ms", snap.Image.P95)
	}

	if snap.Audio.P50 != 500*time.Millisecond {
		t.Errorf("Audio P50 = %v, want 500ms", snap.Audio.P50)
	}
	if snap.Video.P50 != 200*time.Millisecond {
		t.Errorf("Video P50 = %v, want 200ms", snap.Video.P50)
	}
	if snap.Build.P50 != 60*time.Second {
		t.Errorf("Build P50 = %v, want 60s", snap.Build.P50)
	}
}

func TestJobStats_EmptySnapshot(t *testing.T) {
	t.Parallel()

	js := NewJobStats(10)
	snap := js.Snapshot()

	if snap.Image.P50 != 0 || snap.Image.P95 != 0 {
		t.Errorf("empty Image = %+v, want zero", snap.Image)
	}
	if snap.Completed != 0 {
		t.Errorf("empty Completed = %d, want 0", snap.Completed)
	}
	if snap.Failed != 0 {
		t.Errorf("empty Failed = %d, want 0", snap.Failed)
	}
}

func TestJobStats_RingBufferWrap(t *testing.T) {
	t.Parallel()

	js := NewJobStats(3)

	js.RecordImage(10 * time.Millisecond)
	js.RecordImage(20 * time.Millisecond)
	js.RecordImage(30 * time.Millisecond)
	js.RecordImage(40 * time.Millisecond)

	snap := js.Snapshot()
	if snap.Image.P50 != 30*time.Millisecond {
		t.Errorf("Image P50 after wrap = %v, want 30ms", snap.Image.P50)
	}
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sorted []time.Duration
		p      float64
		want   time.Duration
	}{
		{"empty", nil, 0.5, 0},
		{"single element p50", []time.Duration{100 * time.Millisecond}, 0.5, 100 * time.Millisecond},
		{"single element p95", []time.Duration{100 * time.Millisecond}, 0.95, 100 * time.Millisecond},
		{"two elements p50", []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, 0.5, 10 * time.Millisecond},
		{"two elements p95", []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, 0.95, 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := percentile(tt.sorted, tt.p)
			if got != tt.want {
				t.Errorf("percentile(%v, %.2f) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}
