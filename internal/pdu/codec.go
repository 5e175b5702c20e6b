package pdu

import (
	"encoding/binary"
	"fmt"
)

// Header is the fixed 16-byte SMPP PDU header.
type Header struct {
	Length   uint32
	Command  uint32
	Status   Status
	Sequence uint32
}

func parseHeader(b []byte) Header {
	return Header{
		Length:   binary.BigEndian.Uint32(b[0:4]),
		Command:  binary.BigEndian.Uint32(b[4:8]),
		Status:   Status(binary.BigEndian.Uint32(b[8:12])),
		Sequence: binary.BigEndian.Uint32(b[12:16]),
	}
}

// Decoder turns a byte stream into decoded requests. Bytes are fed in
// with Write as they arrive from the socket; Next yields one request per
// complete frame and (nil, nil) when the buffered bytes do not yet hold
// a complete frame. Partial frames are never consumed: a suspended
// decode resumes exactly where it left off once more bytes arrive.
type Decoder struct {
	buf     []byte
	skipped uint64
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends stream bytes to the decode buffer. It never fails; it
// implements io.Writer so the decoder can sit behind an io.Copy or a
// TeeReader.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered reports how many bytes are waiting to be decoded.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Skipped reports how many well-formed frames were consumed without
// producing a request (unknown command ids, unparseable bodies).
func (d *Decoder) Skipped() uint64 { return d.skipped }

// Next decodes the next request from the buffer. It returns (nil, nil)
// when fewer than a full frame's bytes are buffered. Frames whose
// command id is not in the decode table are consumed and skipped; the
// stream continues with the following frame. A frame whose declared
// length is shorter than the header is unrecoverable (the frame
// boundary is lost) and yields an error.
func (d *Decoder) Next() (Request, error) {
	for {
		if len(d.buf) < HeaderLen {
			return nil, nil
		}
		hdr := parseHeader(d.buf)
		if hdr.Length < HeaderLen {
			return nil, fmt.Errorf("pdu: invalid command length %d", hdr.Length)
		}
		if uint32(len(d.buf)) < hdr.Length {
			// Wait for the rest of the frame.
			return nil, nil
		}
		body := d.buf[HeaderLen:hdr.Length]
		d.buf = d.buf[hdr.Length:]

		decode, ok := requestDecoders[hdr.Command]
		if !ok {
			d.skipped++
			continue
		}
		req, err := decode(hdr.Sequence, body)
		if err != nil {
			// Malformed body: the frame is already consumed, the
			// stream stays usable.
			d.skipped++
			continue
		}
		return req, nil
	}
}

// marshal prepends the 16-byte header to a body.
func marshal(commandID uint32, status Status, seq uint32, body []byte) []byte {
	out := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(out)))
	binary.BigEndian.PutUint32(out[4:8], commandID)
	binary.BigEndian.PutUint32(out[8:12], uint32(status))
	binary.BigEndian.PutUint32(out[12:16], seq)
	copy(out[HeaderLen:], body)
	return out
}
