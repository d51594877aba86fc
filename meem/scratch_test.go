package meem

import (
	"errors"
	"testing"

	is2 "github.com/matryer/is"
)

func TestScratch_exclusive(t *testing.T) {
	is := is2.New(t)
	s := newScratch(8)
	is.NoErr(s.acquire())
	is.True(errors.Is(s.acquire(), ErrScratchBusy))
	s.release()
	is.NoErr(s.acquire())
}

func TestScratch_load(t *testing.T) {
	is := is2.New(t)
	s := newScratch(8)
	is.NoErr(s.acquire())
	is.NoErr(s.load([]byte("12345678")))
	is.Equal(s.String(), "12345678")
	is.NoErr(s.load([]byte("ab")))
	is.Equal(s.String(), "ab")
	is.Equal(s.buf[2:], make([]byte, 6)) // tail zeroed

	err := s.load([]byte("123456789"))
	is.True(errors.Is(err, ErrPayloadTooLarge))
	is.Equal(s.String(), "ab") // untouched

	is.NoErr(s.load(nil))
	is.Equal(s.String(), "")
	s.release()
}

func TestScratch_appendString(t *testing.T) {
	is := is2.New(t)
	s := newScratch(12)
	is.NoErr(s.acquire())
	is.NoErr(s.appendString("(add "))
	is.NoErr(s.appendString("dev-1"))
	is.NoErr(s.appendString(")"))
	is.Equal(s.String(), "(add dev-1)")
	err := s.appendString("xx")
	is.True(errors.Is(err, ErrPayloadTooLarge))
	is.Equal(s.String(), "(add dev-1)")
	is.Equal(s.capacity(), 12)
	s.release()
}
