package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pires/go-proxyproto"

	"github.com/arkosms/smscd/internal/config"
	"github.com/arkosms/smscd/internal/logging"
	"github.com/arkosms/smscd/internal/pdu"
	"github.com/arkosms/smscd/internal/session"
	"github.com/arkosms/smscd/internal/stats"
)

var ErrStopped = errors.New("server: listener stopped")

// idleSweepInterval is how often the idle watchdog scans sessions.
const idleSweepInterval = 30 * time.Second

// Listener accepts ESME connections, runs the per-connection read loop,
// and feeds decoded requests into the Handler. Suspend and Resume
// rebind the socket while keeping established sessions alive; Stop is
// terminal.
type Listener struct {
	cfg     config.ServerConfig
	handler *Handler
	stats   *stats.Stats

	tlsConfig *tls.Config

	mu       sync.Mutex
	ln       net.Listener
	port     int
	stopped  bool
	acceptWg sync.WaitGroup

	sessMu   sync.Mutex
	sessions map[string]*clientConn

	// dispatch bounds the number of concurrently handled connections.
	dispatch chan struct{}

	connWg   sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

func NewListener(cfg config.ServerConfig, h *Handler, st *stats.Stats) (*Listener, error) {
	l := &Listener{
		cfg:      cfg,
		handler:  h,
		stats:    st,
		sessions: make(map[string]*clientConn),
		dispatch: make(chan struct{}, cfg.MaxThreads),
		shutdown: make(chan struct{}),
	}
	if cfg.TLSCertFile != "" {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		l.tlsConfig = tlsConfig
	}
	return l, nil
}

func buildTLSConfig(cfg config.ServerConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.TLSClientCAFile != "" {
		pem, err := os.ReadFile(cfg.TLSClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("client CA file %s holds no usable certificates", cfg.TLSClientCAFile)
		}
		tc.ClientCAs = pool
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if len(cfg.TLSCipherSuites) > 0 {
		ids, err := cipherSuiteIDs(cfg.TLSCipherSuites)
		if err != nil {
			return nil, err
		}
		tc.CipherSuites = ids
	}
	return tc, nil
}

func cipherSuiteIDs(names []string) ([]uint16, error) {
	byName := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		byName[cs.Name] = cs.ID
	}
	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown TLS cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Listen binds the socket. With TLS configured, the handshake happens
// before any protocol bytes (implicit TLS, no STARTTLS).
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrStopped
	}
	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}
	l.port = ln.Addr().(*net.TCPAddr).Port
	if l.cfg.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	if l.tlsConfig != nil {
		ln = tls.NewListener(ln, l.tlsConfig)
	}
	l.ln = ln

	l.acceptWg.Add(1)
	go l.acceptLoop(ln)
	slog.Info("SMPP listener started",
		slog.String("address", l.cfg.Addr),
		slog.Int("port", l.port),
		slog.Bool("tls", l.tlsConfig != nil))
	return nil
}

// BoundPort returns the effective port after Listen, which matters when
// the configured port was 0.
func (l *Listener) BoundPort() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// Suspend unbinds the listening socket. Established sessions keep
// running and stay registered.
func (l *Listener) Suspend() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return
	}
	_ = l.ln.Close()
	l.ln = nil
	slog.Info("SMPP listener suspended")
}

// Resume rebinds after a Suspend.
func (l *Listener) Resume() error {
	return l.Listen()
}

// Stop is terminal: the socket is closed, every session is torn down,
// and the listener cannot be restarted.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.shutdown)
		l.mu.Lock()
		l.stopped = true
		if l.ln != nil {
			_ = l.ln.Close()
			l.ln = nil
		}
		l.mu.Unlock()

		l.sessMu.Lock()
		for _, c := range l.sessions {
			c.sess.Close()
		}
		l.sessMu.Unlock()

		l.acceptWg.Wait()
		l.connWg.Wait()
		slog.Info("SMPP listener stopped")
	})
}

// Run listens and blocks until ctx is canceled, running the idle
// watchdog in the meantime.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return nil
		case <-l.shutdown:
			return nil
		case <-ticker.C:
			l.closeIdleSessions()
		}
	}
}

func (l *Listener) closeIdleSessions() {
	now := time.Now()
	l.sessMu.Lock()
	var idle []*clientConn
	for _, c := range l.sessions {
		if c.sess.Idle(now) {
			idle = append(idle, c)
		}
	}
	l.sessMu.Unlock()
	for _, c := range idle {
		// No protocol goodbye on idle timeout; just drop the socket.
		slog.Info("Closing idle session",
			slog.String("session_id", c.sess.ID().String()),
			slog.String("remote_addr", c.sess.RemoteAddr()))
		c.sess.Close()
	}
}

func (l *Listener) acceptLoop(ln net.Listener) {
	defer l.acceptWg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
			default:
				if !errors.Is(err, net.ErrClosed) {
					slog.Error("Failed to accept connection", slog.Any("error", err))
				}
			}
			return
		}
		remote := conn.RemoteAddr().String()
		if !l.addressAllowed(remote) {
			slog.Warn("Connection refused by IP filter", slog.String("remote_addr", remote))
			_ = conn.Close()
			continue
		}

		l.connWg.Add(1)
		go l.serveConn(conn, remote)
	}
}

// addressAllowed applies the allow/deny CIDR filter. An empty allow
// list admits everyone not explicitly denied.
func (l *Listener) addressAllowed(addr string) bool {
	ip := net.ParseIP(remoteHost(addr))
	if ip == nil {
		return false
	}
	for _, n := range l.cfg.DeniedIPNets() {
		if n.Contains(ip) {
			return false
		}
	}
	allowed := l.cfg.AllowedIPNets()
	if len(allowed) == 0 {
		return true
	}
	for _, n := range allowed {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (l *Listener) serveConn(conn net.Conn, remote string) {
	defer l.connWg.Done()

	// Connection-level backpressure: beyond MaxThreads concurrent
	// connections, new arrivals wait here before any protocol exchange.
	select {
	case l.dispatch <- struct{}{}:
		defer func() { <-l.dispatch }()
	case <-l.shutdown:
		_ = conn.Close()
		return
	}

	sess := session.New(conn, remote, l.cfg.IdleTimeout)
	c := &clientConn{sess: sess}
	ctx := logging.ContextWithRemoteAddr(context.Background(), remote)
	ctx = logging.ContextWithSessionID(ctx, sess.ID().String())

	l.stats.ConnectionOpened(remoteHost(remote))
	slog.InfoContext(ctx, "Accepted SMPP connection")

	l.sessMu.Lock()
	l.sessions[sess.ID().String()] = c
	l.sessMu.Unlock()

	defer func() {
		l.sessMu.Lock()
		delete(l.sessions, sess.ID().String())
		l.sessMu.Unlock()
		l.handler.SessionClosed(ctx, c)
		sess.Close()
		slog.InfoContext(ctx, "Closed SMPP connection")
	}()

	decoder := pdu.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			sess.Touch()
			_, _ = decoder.Write(buf[:n])
			if l.drainRequests(ctx, c, decoder) {
				return
			}
		}
		if err != nil {
			select {
			case <-sess.Closed():
			case <-l.shutdown:
			default:
				slog.InfoContext(ctx, "Connection read ended", slog.Any("error", err))
			}
			return
		}
	}
}

// drainRequests dispatches every complete frame buffered so far and
// reports whether the session should close.
func (l *Listener) drainRequests(ctx context.Context, c *clientConn, decoder *pdu.Decoder) bool {
	for {
		req, err := decoder.Next()
		if err != nil {
			// Frame boundary lost; nothing sane can follow.
			slog.WarnContext(ctx, "Unrecoverable framing error", slog.Any("error", err))
			return true
		}
		if req == nil {
			return false
		}
		c.sess.BeginRequest()
		closeSession := l.handler.Handle(ctx, c, req)
		c.sess.EndRequest()
		if closeSession {
			return true
		}
	}
}

// Sessions returns a snapshot of the live sessions for reporting.
func (l *Listener) Sessions() []session.Info {
	l.sessMu.Lock()
	defer l.sessMu.Unlock()
	out := make([]session.Info, 0, len(l.sessions))
	for _, c := range l.sessions {
		out = append(out, c.sess.Info())
	}
	return out
}
