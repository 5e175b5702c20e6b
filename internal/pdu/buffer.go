package pdu

import (
	"bytes"
	"errors"
)

// ErrTruncatedBody is returned when a PDU body ends before all mandatory
// fields have been read.
var ErrTruncatedBody = errors.New("pdu: truncated body")

// bodyReader walks the mandatory fields of a PDU body. All read methods
// latch the first error; callers check err once at the end.
type bodyReader struct {
	buf []byte
	pos int
	err error
}

func newBodyReader(body []byte) *bodyReader {
	return &bodyReader{buf: body}
}

// cstring reads a NUL-terminated string (the NUL is consumed).
func (r *bodyReader) cstring() string {
	if r.err != nil {
		return ""
	}
	idx := bytes.IndexByte(r.buf[r.pos:], 0x00)
	if idx < 0 {
		r.err = ErrTruncatedBody
		return ""
	}
	s := string(r.buf[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s
}

func (r *bodyReader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.buf) {
		r.err = ErrTruncatedBody
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

// bytes reads exactly n raw bytes.
func (r *bodyReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = ErrTruncatedBody
		return nil
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+n])
	r.pos += n
	return b
}

// rest returns whatever remains of the body (optional parameters and
// the like); never fails.
func (r *bodyReader) rest() []byte {
	if r.err != nil || r.pos >= len(r.buf) {
		return nil
	}
	b := make([]byte, len(r.buf)-r.pos)
	copy(b, r.buf[r.pos:])
	r.pos = len(r.buf)
	return b
}

// bodyWriter builds a PDU body.
type bodyWriter struct {
	buf bytes.Buffer
}

func (w *bodyWriter) cstring(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0x00)
}

func (w *bodyWriter) byte(b byte) {
	w.buf.WriteByte(b)
}

func (w *bodyWriter) bytes(b []byte) {
	w.buf.Write(b)
}

func (w *bodyWriter) out() []byte {
	return w.buf.Bytes()
}
