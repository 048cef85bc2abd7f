package openwebnet

import "bytes"

// Frame literals
const (
	ACK               = "*#*1##"
	NACK              = "*#*0##"
	StartConfigFrame  = "*99*0##"
	StartCommandFrame = "*99*9##"
	StartMonitorFrame = "*99*1##"
)

const (
	frameStart = '*'
	frameEnd   = "##"
)

// MaxPending bounds the carry buffer. A partial frame longer than this is
// dropped.
const MaxPending = 64 << 10

// Splitter cuts an OpenWebNet byte stream into frames.
//
// A frame is the shortest run that starts at '*' and ends at the first "##"
// found after at least one payload byte. Bytes in front of a '*' are noise
// and dropped. An unterminated tail is carried over and prepended to the
// next Feed, so a frame split across TCP segments is still delivered whole.
//
// The zero value is ready to use. A Splitter is not safe for concurrent use.
type Splitter struct {
	// OnOverflow, if set, is called with the number of bytes dropped when
	// the carry grows past MaxPending.
	OnOverflow func(dropped int)

	carry []byte
}

// Feed appends data to the carry buffer and returns every complete frame,
// in stream order. It may return no frames.
func (s *Splitter) Feed(data []byte) []string {
	s.carry = append(s.carry, data...)

	var frames []string
	for {
		frame, advance := nextFrame(s.carry)
		if advance == 0 {
			break
		}
		s.carry = s.carry[advance:]
		if frame != "" {
			frames = append(frames, frame)
		}
	}

	if n := len(s.carry); n > MaxPending {
		s.carry = nil
		if s.OnOverflow != nil {
			s.OnOverflow(n)
		}
	}

	// keep the carry from pinning a large backing array
	if len(s.carry) == 0 {
		s.carry = nil
	}
	return frames
}

// Pending returns the buffered bytes that do not form a complete frame yet.
func (s *Splitter) Pending() string {
	return string(s.carry)
}

// Reset drops the carry buffer.
func (s *Splitter) Reset() {
	s.carry = nil
}

// nextFrame finds the first frame in data. advance is the number of bytes
// consumed; it is zero when more data is needed. frame is empty when only
// leading noise was consumed.
func nextFrame(data []byte) (frame string, advance int) {
	start := bytes.IndexByte(data, frameStart)
	if start < 0 {
		// nothing but noise
		return "", len(data)
	}
	if start > 0 {
		return "", start
	}

	// payload must hold at least one byte before the terminator
	if len(data) < 2 {
		return "", 0
	}
	end := bytes.Index(data[2:], []byte(frameEnd))
	if end < 0 {
		return "", 0
	}
	advance = end + 2 + len(frameEnd)
	return string(data[:advance]), advance
}

// SplitFrames splits s in one go and returns the frames and the unterminated
// remainder.
func SplitFrames(s string) (frames []string, rest string) {
	var sp Splitter
	frames = sp.Feed([]byte(s))
	return frames, sp.Pending()
}
