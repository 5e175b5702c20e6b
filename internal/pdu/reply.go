package pdu

import "errors"

// ErrMessageTooLong is returned when a short message does not fit the
// single-octet sm_length field and therefore cannot be framed whole.
var ErrMessageTooLong = errors.New("pdu: short message exceeds 254 octets")

// Reply is the server's answer to one request. EncodeReply frames the
// reply body under the standard header with the request's command id
// response-flagged and the request's sequence number echoed back.
type Reply interface {
	// RequestCommandID is the command id of the request being answered.
	RequestCommandID() uint32
	// MarshalBody serializes the reply's mandatory fields. Replies that
	// carry a non-OK status conventionally serialize an empty body.
	MarshalBody() []byte
}

// EncodeReply produces the full wire frame for a reply.
func EncodeReply(r Reply, seq uint32, status Status) []byte {
	var body []byte
	if status == StatusOK {
		body = r.MarshalBody()
	}
	return EncodeStatusReply(r.RequestCommandID(), seq, status, body)
}

// EncodeStatusReply produces a reply frame for a request command id with
// an explicit body. Used directly for error replies and for commands the
// server does not implement.
func EncodeStatusReply(requestCommandID uint32, seq uint32, status Status, body []byte) []byte {
	return marshal(RespID(requestCommandID), status, seq, body)
}

// EncodeGenericNack produces a generic_nack frame, used when the failing
// request's command id is itself unusable.
func EncodeGenericNack(seq uint32, status Status) []byte {
	return marshal(CommandGenericNack, status, seq, nil)
}

// BindResp answers any of the three bind requests.
type BindResp struct {
	Request  *Bind
	SystemID string // the server's system id
}

func (r *BindResp) RequestCommandID() uint32 { return r.Request.CommandID() }

func (r *BindResp) MarshalBody() []byte {
	var w bodyWriter
	w.cstring(r.SystemID)
	return w.out()
}

// SubmitSMResp answers submit_sm with the assigned message id.
type SubmitSMResp struct {
	MessageID string
}

func (*SubmitSMResp) RequestCommandID() uint32 { return CommandSubmitSM }

func (r *SubmitSMResp) MarshalBody() []byte {
	var w bodyWriter
	w.cstring(r.MessageID)
	return w.out()
}

// SubmitMultiResp answers submit_multi. Failed destinations are reported
// in the unsuccess list.
type SubmitMultiResp struct {
	MessageID string
	Unsuccess []UnsuccessDest
}

// UnsuccessDest is one destination the server could not accept.
type UnsuccessDest struct {
	Dest   Address
	Status Status
}

func (*SubmitMultiResp) RequestCommandID() uint32 { return CommandSubmitMulti }

func (r *SubmitMultiResp) MarshalBody() []byte {
	var w bodyWriter
	w.cstring(r.MessageID)
	w.byte(byte(len(r.Unsuccess)))
	for _, u := range r.Unsuccess {
		w.byte(u.Dest.TON)
		w.byte(u.Dest.NPI)
		w.cstring(u.Dest.Addr)
		var code [4]byte
		code[0] = byte(uint32(u.Status) >> 24)
		code[1] = byte(uint32(u.Status) >> 16)
		code[2] = byte(uint32(u.Status) >> 8)
		code[3] = byte(uint32(u.Status))
		w.bytes(code[:])
	}
	return w.out()
}

// DataSMResp answers data_sm.
type DataSMResp struct {
	MessageID string
}

func (*DataSMResp) RequestCommandID() uint32 { return CommandDataSM }

func (r *DataSMResp) MarshalBody() []byte {
	var w bodyWriter
	w.cstring(r.MessageID)
	return w.out()
}

// QuerySMResp answers query_sm.
type QuerySMResp struct {
	MessageID    string
	FinalDate    string // SMPP time string, empty while not final
	MessageState byte
	ErrorCode    byte
}

// Message states reported by QuerySMResp, per the protocol.
const (
	MsgStateEnroute       byte = 1
	MsgStateDelivered     byte = 2
	MsgStateExpired       byte = 3
	MsgStateDeleted       byte = 4
	MsgStateUndeliverable byte = 5
)

func (*QuerySMResp) RequestCommandID() uint32 { return CommandQuerySM }

func (r *QuerySMResp) MarshalBody() []byte {
	var w bodyWriter
	w.cstring(r.MessageID)
	w.cstring(r.FinalDate)
	w.byte(r.MessageState)
	w.byte(r.ErrorCode)
	return w.out()
}

// ReplaceSMResp answers replace_sm. No body.
type ReplaceSMResp struct{}

func (*ReplaceSMResp) RequestCommandID() uint32 { return CommandReplaceSM }
func (*ReplaceSMResp) MarshalBody() []byte      { return nil }

// CancelSMResp answers cancel_sm. No body.
type CancelSMResp struct{}

func (*CancelSMResp) RequestCommandID() uint32 { return CommandCancelSM }
func (*CancelSMResp) MarshalBody() []byte      { return nil }

// UnbindResp answers unbind. No body.
type UnbindResp struct{}

func (*UnbindResp) RequestCommandID() uint32 { return CommandUnbind }
func (*UnbindResp) MarshalBody() []byte      { return nil }

// EnquireLinkResp answers enquire_link. No body.
type EnquireLinkResp struct{}

func (*EnquireLinkResp) RequestCommandID() uint32 { return CommandEnquireLink }
func (*EnquireLinkResp) MarshalBody() []byte      { return nil }

// ParamRetrieveResp answers param_retrieve with the parameter value.
type ParamRetrieveResp struct {
	Value string
}

func (*ParamRetrieveResp) RequestCommandID() uint32 { return CommandParamRetrieve }

func (r *ParamRetrieveResp) MarshalBody() []byte {
	var w bodyWriter
	w.cstring(r.Value)
	return w.out()
}

// DeliverSM is the server-originated push of a message to a bound
// receiver. It is a request on the wire, not a reply, so it is encoded
// with its own command id and a server-assigned sequence number.
type DeliverSM struct {
	ServiceType   string
	Source        Address
	Dest          Address
	EsmClass      byte
	ProtocolID    byte
	Priority      byte
	RegisteredDlv byte
	DataCoding    byte
	Message       []byte
}

// Encode frames the deliver_sm under the given sequence number. A
// message too long for the sm_length field fails rather than going out
// truncated.
func (d *DeliverSM) Encode(seq uint32) ([]byte, error) {
	if len(d.Message) > 254 {
		return nil, ErrMessageTooLong
	}
	var w bodyWriter
	w.cstring(d.ServiceType)
	w.byte(d.Source.TON)
	w.byte(d.Source.NPI)
	w.cstring(d.Source.Addr)
	w.byte(d.Dest.TON)
	w.byte(d.Dest.NPI)
	w.cstring(d.Dest.Addr)
	w.byte(d.EsmClass)
	w.byte(d.ProtocolID)
	w.byte(d.Priority)
	w.cstring("") // schedule_delivery_time: immediate
	w.cstring("") // validity_period: default
	w.byte(d.RegisteredDlv)
	w.byte(0) // replace_if_present
	w.byte(d.DataCoding)
	w.byte(0) // sm_default_msg_id
	w.byte(byte(len(d.Message)))
	w.bytes(d.Message)
	return marshal(CommandDeliverSM, StatusOK, seq, w.out()), nil
}
