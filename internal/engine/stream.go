package engine

// SliceStream serves segments that were produced in one go, as the
// request/response backends do.
type SliceStream struct {
	segments []Segment
	pos      int
	closed   bool
	onClose  func()
}

// NewSliceStream wraps segments; onClose, if set, runs once on Close.
func NewSliceStream(segments []Segment, onClose func()) *SliceStream {
	return &SliceStream{segments: segments, pos: -1, onClose: onClose}
}

func (s *SliceStream) Next() bool {
	if s.closed || s.pos+1 >= len(s.segments) {
		s.pos = len(s.segments)
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Segment() Segment {
	if s.pos < 0 || s.pos >= len(s.segments) {
		return Segment{}
	}
	return s.segments[s.pos]
}

func (s *SliceStream) Err() error {
	return nil
}

func (s *SliceStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// Gate enforces one open stream at a time for an engine.
type Gate struct {
	open bool
}

// Acquire marks a stream as open, failing with ErrBusy if one already is.
func (g *Gate) Acquire() error {
	if g.open {
		return ErrBusy
	}
	g.open = true
	return nil
}

func (g *Gate) Release() {
	g.open = false
}
