package pdu

import "fmt"

// Status is an SMPP command_status value.
type Status uint32

// SMPP v3.4 error status codes.
const (
	StatusOK              Status = 0x00000000 // ESME_ROK
	StatusInvMsgLen       Status = 0x00000001 // ESME_RINVMSGLEN
	StatusInvCmdLen       Status = 0x00000002 // ESME_RINVCMDLEN
	StatusInvCmdID        Status = 0x00000003 // ESME_RINVCMDID
	StatusInvBindStatus   Status = 0x00000004 // ESME_RINVBNDSTS
	StatusAlreadyBound    Status = 0x00000005 // ESME_RALYBND
	StatusInvPriority     Status = 0x00000006 // ESME_RINVPRTFLG
	StatusInvRegDelivery  Status = 0x00000007 // ESME_RINVREGDLVFLG
	StatusSystemError     Status = 0x00000008 // ESME_RSYSERR
	StatusInvSrcAddr      Status = 0x0000000A // ESME_RINVSRCADR
	StatusInvDstAddr      Status = 0x0000000B // ESME_RINVDSTADR
	StatusInvMsgID        Status = 0x0000000C // ESME_RINVMSGID
	StatusBindFailed      Status = 0x0000000D // ESME_RBINDFAIL
	StatusInvPassword     Status = 0x0000000E // ESME_RINVPASWD
	StatusInvSystemID     Status = 0x0000000F // ESME_RINVSYSID
	StatusCancelFailed    Status = 0x00000011 // ESME_RCANCELFAIL
	StatusReplaceFailed   Status = 0x00000013 // ESME_RREPLACEFAIL
	StatusMsgQueueFull    Status = 0x00000014 // ESME_RMSGQFUL
	StatusInvServiceType  Status = 0x00000015 // ESME_RINVSERTYP
	StatusInvNumDests     Status = 0x00000033 // ESME_RINVNUMDESTS
	StatusInvDistList     Status = 0x00000034 // ESME_RINVDLNAME
	StatusInvDestFlag     Status = 0x00000040 // ESME_RINVDESTFLAG
	StatusInvSubmitFlag   Status = 0x00000042 // ESME_RINVSUBREP
	StatusInvEsmClass     Status = 0x00000043 // ESME_RINVESMCLASS
	StatusCannotSubmitDL  Status = 0x00000044 // ESME_RCNTSUBDL
	StatusSubmitFailed    Status = 0x00000045 // ESME_RSUBMITFAIL
	StatusInvSrcTON       Status = 0x00000048 // ESME_RINVSRCTON
	StatusInvSrcNPI       Status = 0x00000049 // ESME_RINVSRCNPI
	StatusInvDstTON       Status = 0x00000050 // ESME_RINVDSTTON
	StatusInvDstNPI       Status = 0x00000051 // ESME_RINVDSTNPI
	StatusInvSystemType   Status = 0x00000053 // ESME_RINVSYSTYP
	StatusInvReplaceFlag  Status = 0x00000054 // ESME_RINVREPFLAG
	StatusInvNumMsgs      Status = 0x00000055 // ESME_RINVNUMMSGS
	StatusThrottled       Status = 0x00000058 // ESME_RTHROTTLED
	StatusInvSchedTime    Status = 0x00000061 // ESME_RINVSCHED
	StatusInvExpiryTime   Status = 0x00000062 // ESME_RINVEXPIRY
	StatusInvDefaultMsgID Status = 0x00000063 // ESME_RINVDFTMSGID
	StatusTempAppError    Status = 0x00000064 // ESME_RX_T_APPN
	StatusPermAppError    Status = 0x00000065 // ESME_RX_P_APPN
	StatusRejectedMsg     Status = 0x00000066 // ESME_RX_R_APPN
	StatusQueryFailed     Status = 0x00000067 // ESME_RQUERYFAIL
	StatusInvTLVStream    Status = 0x000000C0 // ESME_RINVOPTPARSTREAM
	StatusTLVNotAllowed   Status = 0x000000C1 // ESME_ROPTPARNOTALLWD
	StatusInvTLVLen       Status = 0x000000C2 // ESME_RINVPARLEN
	StatusMissingTLV      Status = 0x000000C3 // ESME_RMISSINGOPTPARAM
	StatusInvTLVValue     Status = 0x000000C4 // ESME_RINVOPTPARAMVAL
	StatusDeliveryFailure Status = 0x000000FE // ESME_RDELIVERYFAILURE
	StatusUnknownError    Status = 0x000000FF // ESME_RUNKNOWNERR
)

var statusNames = map[Status]string{
	StatusOK:              "ok",
	StatusInvMsgLen:       "invalid message length",
	StatusInvCmdLen:       "invalid command length",
	StatusInvCmdID:        "invalid command id",
	StatusInvBindStatus:   "incorrect bind status",
	StatusAlreadyBound:    "already bound",
	StatusInvPriority:     "invalid priority flag",
	StatusInvRegDelivery:  "invalid registered delivery flag",
	StatusSystemError:     "system error",
	StatusInvSrcAddr:      "invalid source address",
	StatusInvDstAddr:      "invalid destination address",
	StatusInvMsgID:        "invalid message id",
	StatusBindFailed:      "bind failed",
	StatusInvPassword:     "invalid password",
	StatusInvSystemID:     "invalid system id",
	StatusCancelFailed:    "cancel failed",
	StatusReplaceFailed:   "replace failed",
	StatusMsgQueueFull:    "message queue full",
	StatusInvServiceType:  "invalid service type",
	StatusInvNumDests:     "invalid number of destinations",
	StatusInvDistList:     "invalid distribution list name",
	StatusInvDestFlag:     "invalid destination flag",
	StatusInvSubmitFlag:   "invalid submit with replace flag",
	StatusInvEsmClass:     "invalid esm_class",
	StatusCannotSubmitDL:  "cannot submit to distribution list",
	StatusSubmitFailed:    "submit failed",
	StatusInvSrcTON:       "invalid source address TON",
	StatusInvSrcNPI:       "invalid source address NPI",
	StatusInvDstTON:       "invalid destination address TON",
	StatusInvDstNPI:       "invalid destination address NPI",
	StatusInvSystemType:   "invalid system type",
	StatusInvReplaceFlag:  "invalid replace_if_present flag",
	StatusInvNumMsgs:      "invalid number of messages",
	StatusThrottled:       "throttled",
	StatusInvSchedTime:    "invalid scheduled delivery time",
	StatusInvExpiryTime:   "invalid validity period",
	StatusInvDefaultMsgID: "invalid default message id",
	StatusTempAppError:    "temporary application error",
	StatusPermAppError:    "permanent application error",
	StatusRejectedMsg:     "message rejected",
	StatusQueryFailed:     "query failed",
	StatusInvTLVStream:    "invalid optional parameter stream",
	StatusTLVNotAllowed:   "optional parameter not allowed",
	StatusInvTLVLen:       "invalid optional parameter length",
	StatusMissingTLV:      "missing expected optional parameter",
	StatusInvTLVValue:     "invalid optional parameter value",
	StatusDeliveryFailure: "delivery failure",
	StatusUnknownError:    "unknown error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(0x%08X)", uint32(s))
}
