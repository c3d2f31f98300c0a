package framework

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/go-server-testkit/logging"
)

const (
	listenAddress    = "127.0.0.1:0"
	acceptRetryDelay = 10 * time.Millisecond
)

type protocol int

const (
	protocolHTTP1 protocol = iota
	protocolHTTP2
	protocolAuto
)

func (p protocol) String() string {
	switch p {
	case protocolHTTP2:
		return "HTTP/2"
	case protocolAuto:
		return "HTTP/1+HTTP/2"
	default:
		return "HTTP/1"
	}
}

func selectProtocol(http1, http2 bool) (protocol, error) {
	switch {
	case http1 && http2:
		return protocolAuto, nil
	case http2:
		return protocolHTTP2, nil
	case http1:
		return protocolHTTP1, nil
	}
	return 0, usageErrorf("serve", "unable to serve connections: both HTTP/1 and HTTP/2 are disabled")
}

// server is the ephemeral listener behind a TestContext. It accepts connections until it is
// closed, serving each one on its own goroutine with the protocol handling chosen at start.
type server struct {
	listener net.Listener
	service  Service
	protocol protocol
	loggers  ldlog.Loggers
	errorLog *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loop   errgroup.Group
	conns  errgroup.Group

	lock sync.Mutex
	// active is keyed by peer address, which stays the same through any wrapping of the
	// connection by net/http or h2c
	active map[string]*trackedConn
}

func startServer(ctx context.Context, service Service, proto protocol, loggers ldlog.Loggers) (*server, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return nil, err
	}
	s := &server{
		listener: listener,
		service:  service,
		protocol: proto,
		loggers:  loggers,
		errorLog: log.New(logging.NewWriter(loggers.ForLevel(ldlog.Error)), "", 0),
		active:   make(map[string]*trackedConn),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	loggers.Debugf("Ephemeral server listening on %s (%s)", listener.Addr(), proto)
	s.loop.Go(s.acceptLoop)
	return s, nil
}

func (s *server) addr() *net.TCPAddr {
	return s.listener.Addr().(*net.TCPAddr)
}

func (s *server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.loggers.Errorf("Failed to accept connection: %s", err)
			select {
			case <-time.After(acceptRetryDelay):
				continue
			case <-s.ctx.Done():
				return nil
			}
		}
		tc := s.track(conn)
		handler, err := s.service.ConnHandler(conn.RemoteAddr())
		if err != nil {
			s.loggers.Errorf("Service refused connection from %s: %s", conn.RemoteAddr(), err)
			_ = tc.Close()
			s.untrack(tc)
			continue
		}
		s.conns.Go(func() error {
			s.serveConn(tc, handler)
			return nil
		})
	}
}

// serveConn never returns an error: a broken connection is logged and dropped without
// affecting the accept loop or the test.
func (s *server) serveConn(conn *trackedConn, handler http.Handler) {
	defer s.untrack(conn)
	peer := conn.RemoteAddr()
	s.loggers.Debugf("Serving %s connection from %s", s.protocol, peer)

	switch s.protocol {
	case protocolHTTP2:
		h2 := &http2.Server{}
		h2.ServeConn(conn, &http2.ServeConnOpts{
			Context:    s.ctx,
			BaseConfig: s.httpServer(handler),
			Handler:    handler,
		})
		_ = conn.Close()
	case protocolAuto:
		s.serveHTTP1(conn, h2c.NewHandler(handler, &http2.Server{}))
	default:
		s.serveHTTP1(conn, s.strictHTTP1(handler))
	}
	s.loggers.Debugf("Connection from %s closed", peer)
}

func (s *server) serveHTTP1(conn *trackedConn, handler http.Handler) {
	srv := s.httpServer(handler)
	err := srv.Serve(newConnListener(conn))
	if err != nil && !errors.Is(err, errConnDone) {
		s.loggers.Errorf("Failed to serve %s connection from %s: %s", s.protocol, conn.RemoteAddr(), err)
	}
}

func (s *server) httpServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:     handler,
		ErrorLog:    s.errorLog,
		BaseContext: func(net.Listener) context.Context { return s.ctx },
		ConnState:   s.connStateChanged,
	}
}

// connStateChanged is called by both net/http and the HTTP/2 server. After an h2c upgrade the
// HTTP/2 server only sees a wrapper around the hijacked connection, so it is matched by peer.
func (s *server) connStateChanged(c net.Conn, state http.ConnState) {
	s.lock.Lock()
	tc := s.active[c.RemoteAddr().String()]
	s.lock.Unlock()
	if tc != nil {
		tc.idle.Store(state == http.StateIdle)
	}
}

// strictHTTP1 rejects the HTTP/2 connection preface, which net/http would otherwise hand to
// the application as a "PRI *" request.
func (s *server) strictHTTP1(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor != 1 {
			s.loggers.Errorf("Rejected %s request from %s: HTTP/2 is not enabled", r.Proto, r.RemoteAddr)
			w.Header().Set("Connection", "close")
			w.WriteHeader(http.StatusHTTPVersionNotSupported)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func (s *server) track(conn net.Conn) *trackedConn {
	tc := &trackedConn{Conn: conn, done: make(chan struct{})}
	s.lock.Lock()
	s.active[conn.RemoteAddr().String()] = tc
	s.lock.Unlock()
	return tc
}

func (s *server) untrack(conn *trackedConn) {
	key := conn.RemoteAddr().String()
	s.lock.Lock()
	if s.active[key] == conn {
		delete(s.active, key)
	}
	s.lock.Unlock()
}

func (s *server) activeConns() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.active)
}

// close stops accepting, waits up to grace for open connections to finish on their own, and
// then closes whatever is left. It returns once every server goroutine has exited.
func (s *server) close(grace time.Duration) {
	s.cancel()
	_ = s.listener.Close()
	_ = s.loop.Wait()
	s.closeConns(func(c *trackedConn) bool { return c.idle.Load() })

	done := make(chan struct{})
	go func() {
		_ = s.conns.Wait()
		close(done)
	}()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
	}

	if n := s.closeConns(func(*trackedConn) bool { return true }); n > 0 {
		s.loggers.Warnf("Closed %d connection(s) still open after %s", n, grace)
	}
	<-done
}

func (s *server) closeConns(match func(*trackedConn) bool) int {
	s.lock.Lock()
	var matched []*trackedConn
	for _, c := range s.active {
		if match(c) {
			matched = append(matched, c)
		}
	}
	s.lock.Unlock()
	for _, c := range matched {
		_ = c.Close()
	}
	return len(matched)
}

var errConnDone = errors.New("connection done")

// trackedConn signals done when it is closed, whoever closes it: net/http, the HTTP/2 server
// after a hijack, or server.close.
type trackedConn struct {
	net.Conn
	done      chan struct{}
	idle      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (c *trackedConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
		close(c.done)
	})
	return c.closeErr
}

// connListener hands a single connection to http.Server.Serve, then blocks until that
// connection is closed so that Serve returns only when the connection is finished.
type connListener struct {
	conn     *trackedConn
	accepted bool
	lock     sync.Mutex
}

func newConnListener(conn *trackedConn) *connListener {
	return &connListener{conn: conn}
}

func (l *connListener) Accept() (net.Conn, error) {
	l.lock.Lock()
	if !l.accepted {
		l.accepted = true
		l.lock.Unlock()
		return l.conn, nil
	}
	l.lock.Unlock()
	<-l.conn.done
	return nil, errConnDone
}

func (l *connListener) Close() error {
	return nil
}

func (l *connListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
