package builtins

// window is a fixed-capacity ring of float64 values. Once full, each push
// evicts the oldest value.
type window struct {
	buf  []float64
	head int // index of the oldest value
	n    int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]float64, capacity)}
}

func (w *window) push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

func (w *window) len() int   { return w.n }
func (w *window) full() bool { return w.n == len(w.buf) }

func (w *window) reset() {
	w.head = 0
	w.n = 0
}

// last returns the most recent k values, oldest first.
func (w *window) last(k int) []float64 {
	k = min(k, w.n)
	out := make([]float64, k)
	start := w.n - k
	for i := 0; i < k; i++ {
		out[i] = w.buf[(w.head+start+i)%len(w.buf)]
	}
	return out
}
