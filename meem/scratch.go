package meem

import "fmt"

// scratch is the fixed capacity buffer shared by registration and inbound copies.
// One operation holds it at a time; acquire fails instead of handing out an aliased buffer.
type scratch struct {
	buf  []byte
	n    int
	busy bool
}

func newScratch(capacity int) *scratch {
	return &scratch{buf: make([]byte, capacity)}
}

func (s *scratch) acquire() error {
	if s.busy {
		return ErrScratchBusy
	}
	s.busy = true
	s.n = 0
	return nil
}

func (s *scratch) release() {
	s.busy = false
}

func (s *scratch) capacity() int {
	return len(s.buf)
}

// load copies p into the buffer and zeroes the remainder. Nothing is copied when p does not fit.
func (s *scratch) load(p []byte) error {
	if len(p) > len(s.buf) {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrPayloadTooLarge, len(p), len(s.buf))
	}
	s.n = copy(s.buf, p)
	clear(s.buf[s.n:])
	return nil
}

// appendString adds str after the current content. The buffer is left unchanged when str does not fit.
func (s *scratch) appendString(str string) error {
	if s.n+len(str) > len(s.buf) {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrPayloadTooLarge, s.n+len(str), len(s.buf))
	}
	s.n += copy(s.buf[s.n:], str)
	return nil
}

// String returns a copy of the current content.
func (s *scratch) String() string {
	return string(s.buf[:s.n])
}
