package pdu

import "fmt"

// SMPP command identifiers. Responses carry the request id with the top
// bit set (respFlag).
const (
	CommandGenericNack     uint32 = 0x80000000
	CommandBindReceiver    uint32 = 0x00000001
	CommandBindTransmitter uint32 = 0x00000002
	CommandQuerySM         uint32 = 0x00000003
	CommandSubmitSM        uint32 = 0x00000004
	CommandDeliverSM       uint32 = 0x00000005
	CommandUnbind          uint32 = 0x00000006
	CommandReplaceSM       uint32 = 0x00000007
	CommandCancelSM        uint32 = 0x00000008
	CommandBindTransceiver uint32 = 0x00000009
	CommandOutbind         uint32 = 0x0000000B
	CommandEnquireLink     uint32 = 0x00000015
	CommandSubmitMulti     uint32 = 0x00000021
	CommandParamRetrieve   uint32 = 0x00000022
	CommandQueryLastMsgs   uint32 = 0x00000023
	CommandQueryMsgDetails uint32 = 0x00000024
	CommandDataSM          uint32 = 0x00000103

	respFlag uint32 = 0x80000000
)

// HeaderLen is the fixed SMPP header size: length, command id, status and
// sequence number, four bytes each, big endian.
const HeaderLen = 16

// RespID returns the response command id for a request command id.
func RespID(commandID uint32) uint32 { return commandID | respFlag }

var commandNames = map[uint32]string{
	CommandGenericNack:     "generic_nack",
	CommandBindReceiver:    "bind_receiver",
	CommandBindTransmitter: "bind_transmitter",
	CommandQuerySM:         "query_sm",
	CommandSubmitSM:        "submit_sm",
	CommandDeliverSM:       "deliver_sm",
	CommandUnbind:          "unbind",
	CommandReplaceSM:       "replace_sm",
	CommandCancelSM:        "cancel_sm",
	CommandBindTransceiver: "bind_transceiver",
	CommandOutbind:         "outbind",
	CommandEnquireLink:     "enquire_link",
	CommandSubmitMulti:     "submit_multi",
	CommandParamRetrieve:   "param_retrieve",
	CommandQueryLastMsgs:   "query_last_msgs",
	CommandQueryMsgDetails: "query_msg_details",
	CommandDataSM:          "data_sm",
}

// CommandName returns the protocol name of a command id, for logging.
func CommandName(commandID uint32) string {
	base := commandID &^ respFlag
	if name, ok := commandNames[base]; ok {
		if commandID&respFlag != 0 && commandID != CommandGenericNack {
			return name + "_resp"
		}
		return name
	}
	return fmt.Sprintf("unknown(0x%08X)", commandID)
}
