package pdu

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(commandID uint32, seq uint32, body []byte) []byte {
	out := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(out)))
	binary.BigEndian.PutUint32(out[4:8], commandID)
	binary.BigEndian.PutUint32(out[8:12], 0)
	binary.BigEndian.PutUint32(out[12:16], seq)
	copy(out[HeaderLen:], body)
	return out
}

func bindBody(systemID, password, systemType string) []byte {
	var w bodyWriter
	w.cstring(systemID)
	w.cstring(password)
	w.cstring(systemType)
	w.byte(0x34)
	w.byte(0x01)
	w.byte(0x01)
	w.cstring("")
	return w.out()
}

func submitBody(source, dest string, msg []byte) []byte {
	var w bodyWriter
	w.cstring("")     // service_type
	w.byte(0x01)      // source ton
	w.byte(0x01)      // source npi
	w.cstring(source)
	w.byte(0x01)
	w.byte(0x01)
	w.cstring(dest)
	w.byte(0x00) // esm_class
	w.byte(0x00) // protocol_id
	w.byte(0x00) // priority
	w.cstring("")
	w.cstring("")
	w.byte(0x01) // registered_delivery
	w.byte(0x00) // replace_if_present
	w.byte(0x00) // data_coding
	w.byte(0x00) // sm_default_msg_id
	w.byte(byte(len(msg)))
	w.bytes(msg)
	return w.out()
}

func TestDecoderPartialHeader(t *testing.T) {
	d := NewDecoder()
	full := frame(CommandEnquireLink, 7, nil)

	_, _ = d.Write(full[:10])
	req, err := d.Next()
	require.NoError(t, err)
	assert.Nil(t, req, "fewer than 16 bytes must yield no packet")
	assert.Equal(t, 10, d.Buffered(), "partial header must not be consumed")

	_, _ = d.Write(full[10:])
	req, err = d.Next()
	require.NoError(t, err)
	require.IsType(t, &EnquireLink{}, req)
	assert.Equal(t, uint32(7), req.Seq())
}

func TestDecoderPartialBody(t *testing.T) {
	d := NewDecoder()
	full := frame(CommandBindTransceiver, 2, bindBody("smppclient1", "password1", ""))

	// Header plus half the body.
	cut := HeaderLen + 5
	_, _ = d.Write(full[:cut])
	req, err := d.Next()
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, cut, d.Buffered(), "partial frame must be preserved for retry")

	_, _ = d.Write(full[cut:])
	req, err = d.Next()
	require.NoError(t, err)
	bind, ok := req.(*Bind)
	require.True(t, ok)
	assert.Equal(t, BindTransceiverMode, bind.Mode)
	assert.Equal(t, "smppclient1", bind.SystemID)
	assert.Equal(t, "password1", bind.Password)
}

func TestDecoderUnknownCommandSkipped(t *testing.T) {
	d := NewDecoder()
	_, _ = d.Write(frame(0x00000042, 9, []byte{0x01, 0x02}))
	_, _ = d.Write(frame(CommandUnbind, 10, nil))

	req, err := d.Next()
	require.NoError(t, err, "unknown command id must not abort the stream")
	require.IsType(t, &Unbind{}, req, "decoding must continue with the next frame")
	assert.Equal(t, uint32(10), req.Seq())
	assert.Equal(t, uint64(1), d.Skipped())
}

func TestDecoderInvalidLength(t *testing.T) {
	d := NewDecoder()
	bad := frame(CommandEnquireLink, 1, nil)
	binary.BigEndian.PutUint32(bad[0:4], 8) // shorter than the header

	_, _ = d.Write(bad)
	_, err := d.Next()
	assert.Error(t, err)
}

func TestDecoderCorrelationIDsAreFresh(t *testing.T) {
	d := NewDecoder()
	_, _ = d.Write(frame(CommandEnquireLink, 1, nil))
	_, _ = d.Write(frame(CommandEnquireLink, 2, nil))

	a, err := d.Next()
	require.NoError(t, err)
	b, err := d.Next()
	require.NoError(t, err)
	assert.NotEqual(t, a.CorrelationID(), b.CorrelationID())
}

func TestDecodeSubmitSM(t *testing.T) {
	d := NewDecoder()
	_, _ = d.Write(frame(CommandSubmitSM, 42, submitBody("15551230001", "15551230002", []byte("hello there"))))

	req, err := d.Next()
	require.NoError(t, err)
	sm, ok := req.(*SubmitSM)
	require.True(t, ok)
	assert.Equal(t, "15551230001", sm.Source.Addr)
	assert.Equal(t, "15551230002", sm.Dest.Addr)
	assert.Equal(t, []byte("hello there"), sm.Message)
	assert.Equal(t, byte(0x01), sm.RegisteredDlv)
	assert.Equal(t, uint32(42), sm.Seq())
}

func TestDecodeTruncatedBodySkipsFrame(t *testing.T) {
	d := NewDecoder()
	// submit_sm whose declared frame ends before the mandatory fields do.
	_, _ = d.Write(frame(CommandSubmitSM, 3, []byte{0x00, 0x01}))
	_, _ = d.Write(frame(CommandEnquireLink, 4, nil))

	req, err := d.Next()
	require.NoError(t, err)
	require.IsType(t, &EnquireLink{}, req)
	assert.Equal(t, uint64(1), d.Skipped())
}

func TestEncodeReplyHeader(t *testing.T) {
	out := EncodeReply(&SubmitSMResp{MessageID: "abc123"}, 42, StatusOK)

	require.GreaterOrEqual(t, len(out), HeaderLen)
	assert.Equal(t, uint32(len(out)), binary.BigEndian.Uint32(out[0:4]))
	assert.Equal(t, CommandSubmitSM|0x80000000, binary.BigEndian.Uint32(out[4:8]))
	assert.Equal(t, uint32(StatusOK), binary.BigEndian.Uint32(out[8:12]))
	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(out[12:16]))
	assert.Equal(t, append([]byte("abc123"), 0x00), out[HeaderLen:])
}

func TestEncodeErrorReplyHasEmptyBody(t *testing.T) {
	out := EncodeReply(&SubmitSMResp{MessageID: "abc123"}, 9, StatusMsgQueueFull)

	assert.Len(t, out, HeaderLen)
	assert.Equal(t, uint32(StatusMsgQueueFull), binary.BigEndian.Uint32(out[8:12]))
}

func TestDeliverSMRoundTrip(t *testing.T) {
	d := &DeliverSM{
		Source:  Address{TON: 1, NPI: 1, Addr: "15550001111"},
		Dest:    Address{TON: 1, NPI: 1, Addr: "15550002222"},
		Message: []byte("ping"),
	}
	out, err := d.Encode(77)
	require.NoError(t, err)

	assert.Equal(t, uint32(len(out)), binary.BigEndian.Uint32(out[0:4]))
	assert.Equal(t, CommandDeliverSM, binary.BigEndian.Uint32(out[4:8]))
	assert.Equal(t, uint32(77), binary.BigEndian.Uint32(out[12:16]))

	// The body must parse back with the submit_sm field layout.
	r := newBodyReader(out[HeaderLen:])
	assert.Equal(t, "", r.cstring())
	src := readAddress(r)
	dst := readAddress(r)
	assert.Equal(t, "15550001111", src.Addr)
	assert.Equal(t, "15550002222", dst.Addr)
}

func TestDeliverSMRejectsOversizedMessage(t *testing.T) {
	d := &DeliverSM{Message: make([]byte, 255)}

	_, err := d.Encode(1)
	assert.ErrorIs(t, err, ErrMessageTooLong, "a message must never go out truncated")
}

func TestParseTime(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	abs, err := ParseTime("260830120000000+", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).Unix(), abs.Unix())

	rel, err := ParseTime("000000010000000R", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), rel)

	zero, err := ParseTime("", now)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseTime("garbage", now)
	assert.Error(t, err)
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, "bind_transceiver", CommandName(CommandBindTransceiver))
	assert.Equal(t, "submit_sm_resp", CommandName(RespID(CommandSubmitSM)))
	assert.Equal(t, "generic_nack", CommandName(CommandGenericNack))
}
