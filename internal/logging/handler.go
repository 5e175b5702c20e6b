package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	SessionIDKey  contextKey = "session_id"
	SystemIDKey   contextKey = "system_id"
	RemoteAddrKey contextKey = "remote_addr"
	CommandKey    contextKey = "command"
	SeqNumberKey  contextKey = "seq_num"
	MessageIDKey  contextKey = "msg_id"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sessID, ok := ctx.Value(SessionIDKey).(string); ok {
		r.AddAttrs(slog.String("session_id", sessID))
	}
	if sysID, ok := ctx.Value(SystemIDKey).(string); ok {
		r.AddAttrs(slog.String("system_id", sysID))
	}
	if addr, ok := ctx.Value(RemoteAddrKey).(string); ok {
		r.AddAttrs(slog.String("remote_addr", addr))
	}
	if cmd, ok := ctx.Value(CommandKey).(string); ok {
		r.AddAttrs(slog.String("command", cmd))
	}
	if seq, ok := ctx.Value(SeqNumberKey).(uint32); ok {
		r.AddAttrs(slog.Uint64("seq_num", uint64(seq)))
	}
	if msgID, ok := ctx.Value(MessageIDKey).(string); ok {
		r.AddAttrs(slog.String("msg_id", msgID))
	}
	return h.Handler.Handle(ctx, r)
}

// Helper functions to add values to context

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func ContextWithSystemID(ctx context.Context, systemID string) context.Context {
	return context.WithValue(ctx, SystemIDKey, systemID)
}

func ContextWithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}

func ContextWithPDUInfo(ctx context.Context, command string, seqNumber uint32) context.Context {
	ctx = context.WithValue(ctx, CommandKey, command)
	return context.WithValue(ctx, SeqNumberKey, seqNumber)
}

func ContextWithMessageID(ctx context.Context, msgID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, msgID)
}
