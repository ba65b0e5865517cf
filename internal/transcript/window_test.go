package transcript

import "testing"

func TestWindowStartsAllZero(t *testing.T) {
	w := NewWindow(10)
	points := w.Points()
	if len(points) != 10 {
		t.Fatalf("expected 10 points, got %d", len(points))
	}
	for i, p := range points {
		if p.Label != "" || p.Confidence != 0 {
			t.Fatalf("expected zero point at %d, got %+v", i, p)
		}
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(10)
	for i := 0; i < 11; i++ {
		w.Append(Point{Label: "sign", Confidence: i})
	}
	points := w.Points()
	if len(points) != 10 {
		t.Fatalf("window exceeded capacity: %d", len(points))
	}
	// The initial zero points and the first appended point (confidence 0)
	// have been pushed out; the window now holds confidences 1..10.
	if points[0].Confidence != 1 {
		t.Fatalf("expected oldest surviving confidence 1, got %d", points[0].Confidence)
	}
	if points[9].Confidence != 10 {
		t.Fatalf("expected newest confidence 10, got %d", points[9].Confidence)
	}
}

func TestWindowResetRestoresZeroState(t *testing.T) {
	w := NewWindow(4)
	w.Append(Point{Label: "Hello", Confidence: 90})
	w.Reset()
	for _, p := range w.Points() {
		if p.Label != "" || p.Confidence != 0 {
			t.Fatalf("expected zero point after reset, got %+v", p)
		}
	}
}
