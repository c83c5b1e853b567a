package inputdev

// Touchscreen implements the Endpoint protocol for NR32's sole input
// device: the host sends "T","S" and the device replies with 'a' followed
// by the latched (x_hi,x_lo,y_hi,y_lo) coordinates, one byte per
// subsequent exchange. Grounded on the reference input_dev/touchscreen.rs.
type Touchscreen struct {
	x, y  uint16
	sawT  bool
	reply []byte
}

// NewTouchscreen returns a Touchscreen latched at (0,0).
func NewTouchscreen() *Touchscreen { return &Touchscreen{} }

// SetTouch latches a new coordinate, as the host UI would on a touch
// event.
func (t *Touchscreen) SetTouch(x, y uint16) {
	t.x, t.y = x, y
}

// Exchange implements Endpoint.
func (t *Touchscreen) Exchange(b byte) byte {
	if len(t.reply) > 0 {
		r := t.reply[0]
		t.reply = t.reply[1:]
		return r
	}
	if t.sawT {
		t.sawT = false
		if b == 'S' {
			t.reply = []byte{
				'a',
				byte(t.x >> 8), byte(t.x),
				byte(t.y >> 8), byte(t.y),
			}
			r := t.reply[0]
			t.reply = t.reply[1:]
			return r
		}
		return 0
	}
	if b == 'T' {
		t.sawT = true
	}
	return 0
}
