package transcript

// Point is one labeled confidence reading in the rolling chart window.
type Point struct {
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
}

// Window is a fixed-capacity sliding window of confidence points. It starts
// filled with zero points and evicts the oldest entry once at capacity.
type Window struct {
	capacity int
	points   []Point
}

func NewWindow(capacity int) *Window {
	w := &Window{capacity: capacity}
	w.Reset()
	return w
}

func (w *Window) Append(p Point) {
	w.points = append(w.points, p)
	if len(w.points) > w.capacity {
		w.points = w.points[1:]
	}
}

// Reset restores the initial all-zero window.
func (w *Window) Reset() {
	w.points = make([]Point, w.capacity)
}

// Points returns a copy of the window contents, oldest first.
func (w *Window) Points() []Point {
	return append([]Point(nil), w.points...)
}
