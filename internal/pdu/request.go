package pdu

import (
	"github.com/google/uuid"
)

// Address is an SMPP address triple.
type Address struct {
	TON  byte
	NPI  byte
	Addr string
}

// BindMode is the capability a bind request asks for.
type BindMode int

const (
	BindNone BindMode = iota
	BindReceiverMode
	BindTransmitterMode
	BindTransceiverMode
)

func (m BindMode) String() string {
	switch m {
	case BindReceiverMode:
		return "receiver"
	case BindTransmitterMode:
		return "transmitter"
	case BindTransceiverMode:
		return "transceiver"
	default:
		return "none"
	}
}

// CanReceive reports whether the mode allows the server to push
// deliver_sm traffic to the client.
func (m BindMode) CanReceive() bool {
	return m == BindReceiverMode || m == BindTransceiverMode
}

// CanTransmit reports whether the mode allows the client to submit
// messages.
func (m BindMode) CanTransmit() bool {
	return m == BindTransmitterMode || m == BindTransceiverMode
}

// Request is one decoded inbound PDU. The concrete set is closed: every
// implementation lives in this package and is registered in the decode
// table below.
type Request interface {
	// CommandID is the wire command id this request was decoded from.
	CommandID() uint32
	// Seq is the client-assigned sequence number, echoed in the reply.
	Seq() uint32
	// CorrelationID is a server-side id assigned at decode time. It is
	// never written to the wire; it exists to tie log lines together.
	CorrelationID() uuid.UUID
}

// Base carries the fields every request shares.
type Base struct {
	Sequence    uint32
	Correlation uuid.UUID
}

func (b Base) Seq() uint32              { return b.Sequence }
func (b Base) CorrelationID() uuid.UUID { return b.Correlation }

func newBase(seq uint32) Base {
	return Base{Sequence: seq, Correlation: uuid.New()}
}

// Bind is any of bind_receiver, bind_transmitter, bind_transceiver.
type Bind struct {
	Base
	Mode             BindMode
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion byte
	AddrTON          byte
	AddrNPI          byte
	AddressRange     string
}

func (b *Bind) CommandID() uint32 {
	switch b.Mode {
	case BindReceiverMode:
		return CommandBindReceiver
	case BindTransmitterMode:
		return CommandBindTransmitter
	default:
		return CommandBindTransceiver
	}
}

// Unbind is an unbind request. No body.
type Unbind struct{ Base }

func (*Unbind) CommandID() uint32 { return CommandUnbind }

// EnquireLink is a keepalive probe. No body.
type EnquireLink struct{ Base }

func (*EnquireLink) CommandID() uint32 { return CommandEnquireLink }

// Outbind asks the receiving side to initiate a bind. A server does not
// act on it but must decode it without killing the stream.
type Outbind struct {
	Base
	SystemID string
	Password string
}

func (*Outbind) CommandID() uint32 { return CommandOutbind }

// ParamRetrieve asks for the value of a named configurable parameter.
type ParamRetrieve struct {
	Base
	ParamName string
}

func (*ParamRetrieve) CommandID() uint32 { return CommandParamRetrieve }

// SubmitSM submits one short message.
type SubmitSM struct {
	Base
	ServiceType      string
	Source           Address
	Dest             Address
	EsmClass         byte
	ProtocolID       byte
	Priority         byte
	ScheduleTime     string // SMPP time string, may be empty
	ValidityPeriod   string // SMPP time string, may be empty
	RegisteredDlv    byte
	ReplaceIfPresent byte
	DataCoding       byte
	DefaultMsgID     byte
	Message          []byte
	Optional         []byte // raw optional-parameter stream, if any
}

func (*SubmitSM) CommandID() uint32 { return CommandSubmitSM }

// DestEntry is one destination in a submit_multi request: either an SME
// address or a distribution list name.
type DestEntry struct {
	Address  *Address
	DistList string
}

// SubmitMulti submits one message to multiple destinations.
type SubmitMulti struct {
	Base
	ServiceType    string
	Source         Address
	Dests          []DestEntry
	EsmClass       byte
	ProtocolID     byte
	Priority       byte
	ScheduleTime   string
	ValidityPeriod string
	RegisteredDlv  byte
	ReplaceIfPres  byte
	DataCoding     byte
	DefaultMsgID   byte
	Message        []byte
	Optional       []byte
}

func (*SubmitMulti) CommandID() uint32 { return CommandSubmitMulti }

// DataSM is the TLV-payload submit variant. The payload rides in the
// optional-parameter stream, kept raw here.
type DataSM struct {
	Base
	ServiceType   string
	Source        Address
	Dest          Address
	EsmClass      byte
	RegisteredDlv byte
	DataCoding    byte
	Optional      []byte
}

func (*DataSM) CommandID() uint32 { return CommandDataSM }

// DeliverSMResp acknowledges a deliver_sm the server pushed out.
type DeliverSMResp struct {
	Base
	MessageID string
}

func (*DeliverSMResp) CommandID() uint32 { return RespID(CommandDeliverSM) }

// QuerySM asks for the state of a previously submitted message.
type QuerySM struct {
	Base
	MessageID string
	Source    Address
}

func (*QuerySM) CommandID() uint32 { return CommandQuerySM }

// QueryLastMsgs asks for the ids of the most recent messages from an
// address.
type QueryLastMsgs struct {
	Base
	Source  Address
	NumMsgs byte
}

func (*QueryLastMsgs) CommandID() uint32 { return CommandQueryLastMsgs }

// QueryMsgDetails asks for the full detail of one message.
type QueryMsgDetails struct {
	Base
	MessageID string
	SMLength  byte
}

func (*QueryMsgDetails) CommandID() uint32 { return CommandQueryMsgDetails }

// ReplaceSM replaces a previously submitted, still pending message.
type ReplaceSM struct {
	Base
	MessageID      string
	Source         Address
	ScheduleTime   string
	ValidityPeriod string
	RegisteredDlv  byte
	DefaultMsgID   byte
	Message        []byte
}

func (*ReplaceSM) CommandID() uint32 { return CommandReplaceSM }

// CancelSM cancels a previously submitted, still pending message.
type CancelSM struct {
	Base
	ServiceType string
	MessageID   string
	Source      Address
	Dest        Address
}

func (*CancelSM) CommandID() uint32 { return CommandCancelSM }

// --- body decoders -------------------------------------------------------

type decodeFunc func(seq uint32, body []byte) (Request, error)

// requestDecoders is the closed dispatch table from command id to body
// decoder. Command ids absent from this table decode to no packet.
var requestDecoders = map[uint32]decodeFunc{
	CommandBindReceiver:      decodeBind(BindReceiverMode),
	CommandBindTransmitter:   decodeBind(BindTransmitterMode),
	CommandBindTransceiver:   decodeBind(BindTransceiverMode),
	CommandUnbind:            func(seq uint32, _ []byte) (Request, error) { return &Unbind{Base: newBase(seq)}, nil },
	CommandEnquireLink:       func(seq uint32, _ []byte) (Request, error) { return &EnquireLink{Base: newBase(seq)}, nil },
	CommandOutbind:           decodeOutbind,
	CommandParamRetrieve:     decodeParamRetrieve,
	CommandSubmitSM:          decodeSubmitSM,
	CommandSubmitMulti:       decodeSubmitMulti,
	CommandDataSM:            decodeDataSM,
	RespID(CommandDeliverSM): decodeDeliverSMResp,
	CommandQuerySM:           decodeQuerySM,
	CommandQueryLastMsgs:     decodeQueryLastMsgs,
	CommandQueryMsgDetails:   decodeQueryMsgDetails,
	CommandReplaceSM:         decodeReplaceSM,
	CommandCancelSM:          decodeCancelSM,
}

func readAddress(r *bodyReader) Address {
	ton := r.byte()
	npi := r.byte()
	addr := r.cstring()
	return Address{TON: ton, NPI: npi, Addr: addr}
}

func decodeBind(mode BindMode) decodeFunc {
	return func(seq uint32, body []byte) (Request, error) {
		r := newBodyReader(body)
		b := &Bind{Base: newBase(seq), Mode: mode}
		b.SystemID = r.cstring()
		b.Password = r.cstring()
		b.SystemType = r.cstring()
		b.InterfaceVersion = r.byte()
		b.AddrTON = r.byte()
		b.AddrNPI = r.byte()
		b.AddressRange = r.cstring()
		return b, r.err
	}
}

func decodeOutbind(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	o := &Outbind{Base: newBase(seq)}
	o.SystemID = r.cstring()
	o.Password = r.cstring()
	return o, r.err
}

func decodeParamRetrieve(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	p := &ParamRetrieve{Base: newBase(seq)}
	p.ParamName = r.cstring()
	return p, r.err
}

func decodeSubmitSM(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	s := &SubmitSM{Base: newBase(seq)}
	s.ServiceType = r.cstring()
	s.Source = readAddress(r)
	s.Dest = readAddress(r)
	s.EsmClass = r.byte()
	s.ProtocolID = r.byte()
	s.Priority = r.byte()
	s.ScheduleTime = r.cstring()
	s.ValidityPeriod = r.cstring()
	s.RegisteredDlv = r.byte()
	s.ReplaceIfPresent = r.byte()
	s.DataCoding = r.byte()
	s.DefaultMsgID = r.byte()
	smLen := r.byte()
	s.Message = r.bytes(int(smLen))
	s.Optional = r.rest()
	return s, r.err
}

func decodeSubmitMulti(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	s := &SubmitMulti{Base: newBase(seq)}
	s.ServiceType = r.cstring()
	s.Source = readAddress(r)
	numDests := r.byte()
	for i := 0; i < int(numDests); i++ {
		flag := r.byte()
		switch flag {
		case 0x01:
			addr := readAddress(r)
			s.Dests = append(s.Dests, DestEntry{Address: &addr})
		case 0x02:
			s.Dests = append(s.Dests, DestEntry{DistList: r.cstring()})
		default:
			if r.err == nil {
				r.err = ErrTruncatedBody
			}
		}
	}
	s.EsmClass = r.byte()
	s.ProtocolID = r.byte()
	s.Priority = r.byte()
	s.ScheduleTime = r.cstring()
	s.ValidityPeriod = r.cstring()
	s.RegisteredDlv = r.byte()
	s.ReplaceIfPres = r.byte()
	s.DataCoding = r.byte()
	s.DefaultMsgID = r.byte()
	smLen := r.byte()
	s.Message = r.bytes(int(smLen))
	s.Optional = r.rest()
	return s, r.err
}

func decodeDataSM(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	d := &DataSM{Base: newBase(seq)}
	d.ServiceType = r.cstring()
	d.Source = readAddress(r)
	d.Dest = readAddress(r)
	d.EsmClass = r.byte()
	d.RegisteredDlv = r.byte()
	d.DataCoding = r.byte()
	d.Optional = r.rest()
	return d, r.err
}

func decodeDeliverSMResp(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	d := &DeliverSMResp{Base: newBase(seq)}
	// message_id is mandatory but some clients send an empty body.
	if len(body) > 0 {
		d.MessageID = r.cstring()
	}
	return d, r.err
}

func decodeQuerySM(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	q := &QuerySM{Base: newBase(seq)}
	q.MessageID = r.cstring()
	q.Source = readAddress(r)
	return q, r.err
}

func decodeQueryLastMsgs(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	q := &QueryLastMsgs{Base: newBase(seq)}
	q.Source = readAddress(r)
	q.NumMsgs = r.byte()
	return q, r.err
}

func decodeQueryMsgDetails(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	q := &QueryMsgDetails{Base: newBase(seq)}
	q.MessageID = r.cstring()
	q.SMLength = r.byte()
	return q, r.err
}

func decodeReplaceSM(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	s := &ReplaceSM{Base: newBase(seq)}
	s.MessageID = r.cstring()
	s.Source = readAddress(r)
	s.ScheduleTime = r.cstring()
	s.ValidityPeriod = r.cstring()
	s.RegisteredDlv = r.byte()
	s.DefaultMsgID = r.byte()
	smLen := r.byte()
	s.Message = r.bytes(int(smLen))
	return s, r.err
}

func decodeCancelSM(seq uint32, body []byte) (Request, error) {
	r := newBodyReader(body)
	c := &CancelSM{Base: newBase(seq)}
	c.ServiceType = r.cstring()
	c.MessageID = r.cstring()
	c.Source = readAddress(r)
	c.Dest = readAddress(r)
	return c, r.err
}
