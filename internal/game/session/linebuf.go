package session

// DefaultLineCapacity is the input capacity used when none is configured.
const DefaultLineCapacity = 300

// LineBuffer turns a byte stream into newline-delimited messages.
//
// When capacity bytes accumulate without a newline the whole content is
// flushed as a message; over-long input is split, never rejected.
type LineBuffer struct {
	buf []byte
	n   int
}

// NewLineBuffer returns an empty LineBuffer holding at most capacity bytes.
//
// Precondition: capacity >= 1.
func NewLineBuffer(capacity int) LineBuffer {
	if capacity < 1 {
		capacity = DefaultLineCapacity
	}
	return LineBuffer{buf: make([]byte, capacity)}
}

// Feed appends b and returns an assembled message, if any.
//
// Postcondition: when ok, msg excludes the terminating newline and Len() == 0.
func (l *LineBuffer) Feed(b byte) (msg string, ok bool) {
	if l.buf == nil {
		l.buf = make([]byte, DefaultLineCapacity)
	}
	l.buf[l.n] = b
	l.n++

	if b == '\n' {
		msg = string(l.buf[:l.n-1])
		l.n = 0
		return msg, true
	}
	if l.n == len(l.buf) {
		msg = string(l.buf[:l.n])
		l.n = 0
		return msg, true
	}
	return "", false
}

// Len returns the number of buffered bytes.
func (l *LineBuffer) Len() int {
	return l.n
}

// Cap returns the buffer capacity.
func (l *LineBuffer) Cap() int {
	if l.buf == nil {
		return DefaultLineCapacity
	}
	return len(l.buf)
}

// Reset discards all buffered bytes.
func (l *LineBuffer) Reset() {
	l.n = 0
}
