package app

// ProximityRing is a circular buffer of one beacon's recent proximity values.
type ProximityRing struct {
	buf   []float64
	pos   int
	count int
}

// NewProximityRing creates a ring holding up to capacity values.
func NewProximityRing(capacity int) *ProximityRing {
	if capacity < 1 {
		capacity = 1
	}
	return &ProximityRing{buf: make([]float64, capacity)}
}

// Push appends a value, overwriting the oldest when full.
func (r *ProximityRing) Push(val float64) {
	r.buf[r.pos] = val
	r.pos = (r.pos + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Values returns the stored values oldest first.
func (r *ProximityRing) Values() []float64 {
	if r.count == 0 {
		return nil
	}
	out := make([]float64, r.count)
	if r.count < len(r.buf) {
		copy(out, r.buf[:r.count])
		return out
	}
	n := copy(out, r.buf[r.pos:])
	copy(out[n:], r.buf[:r.pos])
	return out
}

// Reset empties the ring.
func (r *ProximityRing) Reset() {
	r.pos, r.count = 0, 0
}

// Len returns the number of stored values.
func (r *ProximityRing) Len() int {
	return r.count
}
