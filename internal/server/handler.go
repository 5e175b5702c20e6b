// Package server is the SMPP-facing surface: the TCP listener and the
// protocol handler that turns decoded requests into replies and store
// mutations.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/arkosms/smscd/internal/admission"
	"github.com/arkosms/smscd/internal/delivery"
	"github.com/arkosms/smscd/internal/logging"
	"github.com/arkosms/smscd/internal/message"
	"github.com/arkosms/smscd/internal/pdu"
	"github.com/arkosms/smscd/internal/session"
	"github.com/arkosms/smscd/internal/stats"
	"github.com/arkosms/smscd/internal/user"
)

// Hook is an optional pre-dispatch plugin. HandleRequest returning true
// short-circuits normal dispatch; SessionClosed errors are logged and
// swallowed since the socket is going away regardless.
type Hook interface {
	HandleRequest(ctx context.Context, sess *session.Session, req pdu.Request) bool
	SessionClosed(ctx context.Context, sess *session.Session) error
}

// HandlerConfig carries the handler's tunables.
type HandlerConfig struct {
	SystemID string
	// MaxBinds caps bound sessions server-wide; 0 means unlimited.
	// Per-user limits are the users' authorities, not this.
	MaxBinds         int
	MaxBindFailures  int
	BindFailureDelay time.Duration
	WriteLockTimeout time.Duration
	IdleTimeout      time.Duration
}

// Handler dispatches decoded requests. One Handler serves all sessions.
type Handler struct {
	cfg       HandlerConfig
	admission *admission.Controller
	messages  message.Manager
	stats     *stats.Stats
	scheduler *delivery.Scheduler
	hook      Hook

	table map[uint32]handlerFunc
}

type handlerFunc func(ctx context.Context, c *clientConn, req pdu.Request) bool

// clientConn is the per-connection handler state the session itself
// does not track.
type clientConn struct {
	sess         *session.Session
	bindFailures int
}

func NewHandler(cfg HandlerConfig, adm *admission.Controller, msgs message.Manager, st *stats.Stats, sched *delivery.Scheduler, hook Hook) *Handler {
	h := &Handler{
		cfg:       cfg,
		admission: adm,
		messages:  msgs,
		stats:     st,
		scheduler: sched,
		hook:      hook,
	}
	h.table = map[uint32]handlerFunc{
		pdu.CommandBindReceiver:          h.handleBind,
		pdu.CommandBindTransmitter:       h.handleBind,
		pdu.CommandBindTransceiver:       h.handleBind,
		pdu.CommandUnbind:                h.handleUnbind,
		pdu.CommandEnquireLink:           h.handleEnquireLink,
		pdu.CommandSubmitSM:              h.handleSubmitSM,
		pdu.CommandSubmitMulti:           h.handleSubmitMulti,
		pdu.CommandDataSM:                h.handleDataSM,
		pdu.CommandQuerySM:               h.handleQuerySM,
		pdu.CommandReplaceSM:             h.handleReplaceSM,
		pdu.CommandCancelSM:              h.handleCancelSM,
		pdu.RespID(pdu.CommandDeliverSM): h.handleDeliverSMResp,
	}
	return h
}

// Handle dispatches one request and reports whether the session should
// be closed afterwards. The caller holds the request open around it, so
// replies written here are within an active exchange.
func (h *Handler) Handle(ctx context.Context, c *clientConn, req pdu.Request) (closeSession bool) {
	ctx = logging.ContextWithPDUInfo(ctx, pdu.CommandName(req.CommandID()), req.Seq())
	if u := c.sess.BoundUser(); u != nil {
		ctx = logging.ContextWithSystemID(ctx, u.Name)
	}

	if h.hook != nil && h.hook.HandleRequest(ctx, c.sess, req) {
		return false
	}

	fn, ok := h.table[req.CommandID()]
	if !ok {
		// Decoded but unimplemented. The client still gets an answer;
		// a session is never left hanging without a response.
		slog.InfoContext(ctx, "Command not supported")
		h.write(ctx, c.sess, pdu.EncodeStatusReply(req.CommandID(), req.Seq(), pdu.StatusInvCmdID, nil))
		return false
	}
	return fn(ctx, c, req)
}

// SessionClosed runs the teardown accounting for a connection. It is
// safe to call after an unbind already ran: the statistics decrement
// happens at most once.
func (h *Handler) SessionClosed(ctx context.Context, c *clientConn) {
	if h.hook != nil {
		if err := h.hook.SessionClosed(ctx, c.sess); err != nil {
			slog.WarnContext(ctx, "Session-closed hook failed", slog.Any("error", err))
		}
	}
	h.unbindSession(c.sess)
	h.stats.ConnectionClosed(remoteHost(c.sess.RemoteAddr()))
}

func (h *Handler) unbindSession(sess *session.Session) {
	systemID, wasBound := sess.Unbind()
	if !wasBound {
		return
	}
	// Deregistration is per session: the same user bound elsewhere keeps
	// receiving.
	h.scheduler.Deregister(sess.ID().String())
	h.admission.Release(systemID, remoteHost(sess.RemoteAddr()))
}

func (h *Handler) write(ctx context.Context, sess *session.Session, frame []byte) {
	if err := sess.Write(frame); err != nil {
		slog.WarnContext(ctx, "Failed to write reply", slog.Any("error", err))
		sess.Close()
	}
}

func (h *Handler) reply(ctx context.Context, sess *session.Session, r pdu.Reply, seq uint32, status pdu.Status) {
	h.write(ctx, sess, pdu.EncodeReply(r, seq, status))
}

func (h *Handler) handleBind(ctx context.Context, c *clientConn, req pdu.Request) bool {
	bind := req.(*pdu.Bind)
	resp := &pdu.BindResp{Request: bind, SystemID: h.cfg.SystemID}

	if c.sess.BoundUser() != nil {
		h.reply(ctx, c.sess, resp, bind.Seq(), pdu.StatusAlreadyBound)
		return false
	}

	addr := remoteHost(c.sess.RemoteAddr())
	if h.cfg.MaxBinds > 0 && h.stats.CurrentBinds() >= int64(h.cfg.MaxBinds) {
		c.bindFailures++
		h.stats.BindFailed(addr)
		slog.WarnContext(ctx, "Bind rejected: server bind capacity reached",
			slog.Int("max_binds", h.cfg.MaxBinds))
		if h.cfg.BindFailureDelay > 0 {
			time.Sleep(h.cfg.BindFailureDelay)
		}
		h.reply(ctx, c.sess, resp, bind.Seq(), pdu.StatusBindFailed)
		return h.cfg.MaxBindFailures > 0 && c.bindFailures >= h.cfg.MaxBindFailures
	}

	u, err := h.admission.Authenticate(ctx, bind.SystemID, bind.Password, addr)
	if err != nil {
		c.bindFailures++
		var af *user.AuthenticationFailed
		status := pdu.StatusSystemError
		if errors.As(err, &af) {
			// The wire never distinguishes bad credentials from limits;
			// the reason only goes to the log.
			status = pdu.StatusBindFailed
			slog.WarnContext(ctx, "Bind rejected",
				slog.String("system_id", bind.SystemID),
				slog.String("reason", af.Reason),
				slog.Int("failures", c.bindFailures))
		} else {
			slog.ErrorContext(ctx, "Bind failed on user store", slog.Any("error", err))
		}
		if h.cfg.BindFailureDelay > 0 {
			time.Sleep(h.cfg.BindFailureDelay)
		}
		h.reply(ctx, c.sess, resp, bind.Seq(), status)
		return h.cfg.MaxBindFailures > 0 && c.bindFailures >= h.cfg.MaxBindFailures
	}

	if err := c.sess.Bind(u, bind.Mode, h.cfg.IdleTimeout); err != nil {
		// Lost the race with a concurrent bind on the same session.
		h.admission.Release(u.Name, addr)
		h.reply(ctx, c.sess, resp, bind.Seq(), pdu.StatusAlreadyBound)
		return false
	}

	slog.InfoContext(ctx, "Session bound",
		slog.String("system_id", u.Name),
		slog.String("mode", bind.Mode.String()))
	h.reply(ctx, c.sess, resp, bind.Seq(), pdu.StatusOK)

	if bind.Mode.CanReceive() {
		h.scheduler.Register(&sessionReceiver{
			sess:        c.sess,
			systemID:    u.Name,
			lockTimeout: h.cfg.WriteLockTimeout,
		})
	}
	return false
}

func (h *Handler) handleUnbind(ctx context.Context, c *clientConn, req pdu.Request) bool {
	h.unbindSession(c.sess)
	h.reply(ctx, c.sess, &pdu.UnbindResp{}, req.Seq(), pdu.StatusOK)
	slog.InfoContext(ctx, "Session unbound")
	return true
}

func (h *Handler) handleEnquireLink(ctx context.Context, c *clientConn, req pdu.Request) bool {
	h.reply(ctx, c.sess, &pdu.EnquireLinkResp{}, req.Seq(), pdu.StatusOK)
	return false
}

// requireTransmit answers with an error reply and reports false when
// the session cannot submit messages.
func (h *Handler) requireTransmit(ctx context.Context, c *clientConn, reply pdu.Reply, seq uint32) bool {
	u := c.sess.BoundUser()
	if u == nil || !c.sess.BindMode().CanTransmit() {
		h.reply(ctx, c.sess, reply, seq, pdu.StatusInvBindStatus)
		return false
	}
	return true
}

func (h *Handler) handleSubmitSM(ctx context.Context, c *clientConn, req pdu.Request) bool {
	sub := req.(*pdu.SubmitSM)
	resp := &pdu.SubmitSMResp{}
	if !h.requireTransmit(ctx, c, resp, sub.Seq()) {
		return false
	}

	m, status := h.buildMessage(sub.Source, sub.Dest, sub.Message, sub.ScheduleTime, sub.ValidityPeriod)
	if status != pdu.StatusOK {
		h.reply(ctx, c.sess, resp, sub.Seq(), status)
		return false
	}
	if err := h.messages.Submit(ctx, m); err != nil {
		slog.ErrorContext(ctx, "Submit failed", slog.Any("error", err))
		h.reply(ctx, c.sess, resp, sub.Seq(), pdu.StatusSubmitFailed)
		return false
	}
	h.stats.MessageReceived(c.sess.BoundUser().Name)
	slog.InfoContext(logging.ContextWithMessageID(ctx, m.ID), "Message accepted",
		slog.String("dest", m.Dest.Addr))
	resp.MessageID = m.ID
	h.reply(ctx, c.sess, resp, sub.Seq(), pdu.StatusOK)
	return false
}

func (h *Handler) handleSubmitMulti(ctx context.Context, c *clientConn, req pdu.Request) bool {
	sub := req.(*pdu.SubmitMulti)
	resp := &pdu.SubmitMultiResp{}
	if !h.requireTransmit(ctx, c, resp, sub.Seq()) {
		return false
	}
	if len(sub.Dests) == 0 {
		h.reply(ctx, c.sess, resp, sub.Seq(), pdu.StatusInvNumDests)
		return false
	}

	submitted := 0
	for _, dest := range sub.Dests {
		if dest.Address == nil {
			// Distribution lists are not served here.
			resp.Unsuccess = append(resp.Unsuccess, pdu.UnsuccessDest{
				Dest:   pdu.Address{Addr: dest.DistList},
				Status: pdu.StatusCannotSubmitDL,
			})
			continue
		}
		m, status := h.buildMessage(sub.Source, *dest.Address, sub.Message, sub.ScheduleTime, sub.ValidityPeriod)
		if status == pdu.StatusOK {
			if err := h.messages.Submit(ctx, m); err != nil {
				slog.ErrorContext(ctx, "Submit failed", slog.Any("error", err))
				status = pdu.StatusSubmitFailed
			}
		}
		if status != pdu.StatusOK {
			resp.Unsuccess = append(resp.Unsuccess, pdu.UnsuccessDest{Dest: *dest.Address, Status: status})
			continue
		}
		submitted++
		h.stats.MessageReceived(c.sess.BoundUser().Name)
		if resp.MessageID == "" {
			resp.MessageID = m.ID
		}
	}
	if submitted == 0 {
		h.reply(ctx, c.sess, resp, sub.Seq(), pdu.StatusSubmitFailed)
		return false
	}
	h.reply(ctx, c.sess, resp, sub.Seq(), pdu.StatusOK)
	return false
}

func (h *Handler) handleDataSM(ctx context.Context, c *clientConn, req pdu.Request) bool {
	d := req.(*pdu.DataSM)
	resp := &pdu.DataSMResp{}
	if !h.requireTransmit(ctx, c, resp, d.Seq()) {
		return false
	}
	m, status := h.buildMessage(d.Source, d.Dest, d.Optional, "", "")
	if status != pdu.StatusOK {
		h.reply(ctx, c.sess, resp, d.Seq(), status)
		return false
	}
	if err := h.messages.Submit(ctx, m); err != nil {
		slog.ErrorContext(ctx, "Submit failed", slog.Any("error", err))
		h.reply(ctx, c.sess, resp, d.Seq(), pdu.StatusSubmitFailed)
		return false
	}
	h.stats.MessageReceived(c.sess.BoundUser().Name)
	resp.MessageID = m.ID
	h.reply(ctx, c.sess, resp, d.Seq(), pdu.StatusOK)
	return false
}

// buildMessage validates the time fields and assembles the stored form.
// The destination address doubles as the recipient system id for
// locally terminated traffic.
func (h *Handler) buildMessage(src, dst pdu.Address, payload []byte, scheduleTime, validityPeriod string) (*message.ShortMessage, pdu.Status) {
	now := time.Now()
	schedule, err := pdu.ParseTime(scheduleTime, now)
	if err != nil {
		return nil, pdu.StatusInvSchedTime
	}
	validity, err := pdu.ParseTime(validityPeriod, now)
	if err != nil {
		return nil, pdu.StatusInvExpiryTime
	}
	return &message.ShortMessage{
		Recipient:      dst.Addr,
		Source:         message.Address{TON: src.TON, NPI: src.NPI, Addr: src.Addr},
		Dest:           message.Address{TON: dst.TON, NPI: dst.NPI, Addr: dst.Addr},
		Payload:        payload,
		ScheduleTime:   schedule,
		ValidityPeriod: validity,
		Status:         message.StatusPending,
		SubmittedAt:    now,
	}, pdu.StatusOK
}

func (h *Handler) handleQuerySM(ctx context.Context, c *clientConn, req pdu.Request) bool {
	q := req.(*pdu.QuerySM)
	resp := &pdu.QuerySMResp{MessageID: q.MessageID}
	if c.sess.BoundUser() == nil {
		h.reply(ctx, c.sess, resp, q.Seq(), pdu.StatusInvBindStatus)
		return false
	}
	m, err := h.messages.SelectByID(ctx, q.MessageID)
	if err != nil {
		slog.ErrorContext(ctx, "Query failed", slog.Any("error", err))
		h.reply(ctx, c.sess, resp, q.Seq(), pdu.StatusQueryFailed)
		return false
	}
	if m == nil {
		h.reply(ctx, c.sess, resp, q.Seq(), pdu.StatusInvMsgID)
		return false
	}
	resp.MessageState = messageState(m.Status)
	h.reply(ctx, c.sess, resp, q.Seq(), pdu.StatusOK)
	return false
}

func messageState(st message.Status) byte {
	switch st {
	case message.StatusDelivered:
		return pdu.MsgStateDelivered
	case message.StatusExpired:
		return pdu.MsgStateExpired
	case message.StatusCanceled:
		return pdu.MsgStateDeleted
	default:
		return pdu.MsgStateEnroute
	}
}

func (h *Handler) handleReplaceSM(ctx context.Context, c *clientConn, req pdu.Request) bool {
	r := req.(*pdu.ReplaceSM)
	resp := &pdu.ReplaceSMResp{}
	if !h.requireTransmit(ctx, c, resp, r.Seq()) {
		return false
	}

	orig, err := h.messages.SelectByID(ctx, r.MessageID)
	if err != nil || orig == nil {
		h.reply(ctx, c.sess, resp, r.Seq(), pdu.StatusReplaceFailed)
		return false
	}
	replacement, status := h.buildMessage(
		pdu.Address{TON: orig.Source.TON, NPI: orig.Source.NPI, Addr: orig.Source.Addr},
		pdu.Address{TON: orig.Dest.TON, NPI: orig.Dest.NPI, Addr: orig.Dest.Addr},
		r.Message, r.ScheduleTime, r.ValidityPeriod)
	if status != pdu.StatusOK {
		h.reply(ctx, c.sess, resp, r.Seq(), status)
		return false
	}
	if _, err := h.messages.Replace(ctx, r.MessageID, replacement); err != nil {
		if !errors.Is(err, message.ErrOriginalNotFound) {
			slog.ErrorContext(ctx, "Replace failed", slog.Any("error", err))
		}
		h.reply(ctx, c.sess, resp, r.Seq(), pdu.StatusReplaceFailed)
		return false
	}
	h.reply(ctx, c.sess, resp, r.Seq(), pdu.StatusOK)
	return false
}

func (h *Handler) handleCancelSM(ctx context.Context, c *clientConn, req pdu.Request) bool {
	cancel := req.(*pdu.CancelSM)
	resp := &pdu.CancelSMResp{}
	if !h.requireTransmit(ctx, c, resp, cancel.Seq()) {
		return false
	}
	if err := h.messages.Cancel(ctx, cancel.MessageID); err != nil {
		if !errors.Is(err, message.ErrOriginalNotFound) {
			slog.ErrorContext(ctx, "Cancel failed", slog.Any("error", err))
		}
		h.reply(ctx, c.sess, resp, cancel.Seq(), pdu.StatusCancelFailed)
		return false
	}
	h.reply(ctx, c.sess, resp, cancel.Seq(), pdu.StatusOK)
	return false
}

func (h *Handler) handleDeliverSMResp(ctx context.Context, c *clientConn, req pdu.Request) bool {
	resp := req.(*pdu.DeliverSMResp)
	// Deliveries are marked at send time; the ack is informational.
	slog.DebugContext(ctx, "deliver_sm acknowledged",
		slog.String("message_id", resp.MessageID))
	return false
}

// sessionReceiver adapts a bound session to the delivery scheduler.
type sessionReceiver struct {
	sess        *session.Session
	systemID    string
	lockTimeout time.Duration
}

func (r *sessionReceiver) ID() string       { return r.sess.ID().String() }
func (r *sessionReceiver) SystemID() string { return r.systemID }

// Deliver pushes one deliver_sm, holding the session write lock for the
// whole write so delivery frames never interleave with each other.
func (r *sessionReceiver) Deliver(m *message.ShortMessage) error {
	d := &pdu.DeliverSM{
		Source:  pdu.Address{TON: m.Source.TON, NPI: m.Source.NPI, Addr: m.Source.Addr},
		Dest:    pdu.Address{TON: m.Dest.TON, NPI: m.Dest.NPI, Addr: m.Dest.Addr},
		Message: m.Payload,
	}
	if err := r.sess.AcquireWriteLock(r.lockTimeout); err != nil {
		return err
	}
	defer r.sess.ReleaseWriteLock()

	frame, err := d.Encode(r.sess.NextSequence())
	if err != nil {
		return err
	}
	return r.sess.Write(frame)
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
