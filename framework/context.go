package framework

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/launchdarkly/go-server-testkit/client"
	"github.com/launchdarkly/go-server-testkit/logging"
)

// TestContext is the per-test state handed to hooks and to the test body. It owns an optional
// ephemeral server, the containers started for the test, and the client used to talk to the
// server.
//
// TestContext implements require.TestingT, so it can be passed directly to testify assertions:
//
//	res, err := tc.Request(ctx, "/", "GET", nil, nil)
//	require.NoError(tc, err)
//	framework.AssertSuccessful(tc, res)
type TestContext struct {
	t        testing.TB
	id       TestID
	cfg      Config
	reporter TestLogger
	// standalone contexts report failures straight to t instead of to a Plan
	standalone bool

	ctx    context.Context
	cancel context.CancelFunc

	debugLogger logging.CapturingLogger
	loggers     ldlog.Loggers

	lock       sync.Mutex
	http1      bool
	http2      bool
	server     *server
	failed     bool
	errors     []error
	skipped    bool
	skipReason string

	clientOnce sync.Once
	client     *client.Client

	containers Containers

	closeOnce sync.Once
	closeErr  error
}

// NewTestContext creates a TestContext that is not driven by a Plan. It is closed automatically
// when t finishes, and its Errorf and FailNow act directly on t.
func NewTestContext(t testing.TB, cfg Config) *TestContext {
	tc := newTestContext(t, cfg, nullTestLogger{}, EnabledContainerRuntime())
	tc.standalone = true
	t.Cleanup(func() {
		if err := tc.Close(); err != nil {
			t.Errorf("closing test context: %s", err)
		}
	})
	return tc
}

func newTestContext(t testing.TB, cfg Config, reporter TestLogger, rt ContainerRuntime) *TestContext {
	tc := &TestContext{
		t:          t,
		id:         testIDFor(t),
		cfg:        cfg,
		reporter:   reporter,
		http1:      cfg.HTTP1,
		http2:      cfg.HTTP2,
		containers: Containers{runtime: rt},
	}
	tc.ctx, tc.cancel = context.WithCancel(context.Background())
	tc.loggers = logging.NewLoggers(&tc.debugLogger, cfg.Debug)
	return tc
}

// ID returns the identifier of the test this context belongs to.
func (tc *TestContext) ID() TestID {
	return tc.id
}

// T returns the underlying test.
func (tc *TestContext) T() testing.TB {
	return tc.t
}

// Context is cancelled when the TestContext is closed.
func (tc *TestContext) Context() context.Context {
	return tc.ctx
}

// Loggers returns the leveled loggers for this test. Their output is captured and shown when
// the test fails, or always in verbose mode.
func (tc *TestContext) Loggers() ldlog.Loggers {
	return tc.loggers
}

// Debug writes a debug-level message to the captured test output.
func (tc *TestContext) Debug(message string, args ...interface{}) {
	tc.loggers.Debugf(message, args...)
}

// DebugOutput returns everything logged for this test so far.
func (tc *TestContext) DebugOutput() logging.CapturedOutput {
	return tc.debugLogger.Output()
}

// Containers returns the registry of containers started for this test.
func (tc *TestContext) Containers() *Containers {
	return &tc.containers
}

// Container returns the first container of type T started for the test.
//
//	valkey, ok := framework.Container[*containers.Container[containers.Valkey]](tc)
func Container[T any](tc *TestContext) (T, bool) {
	return Lookup[T](&tc.containers)
}

// AllowHTTP1 enables or disables HTTP/1 connections to the ephemeral server. It must be called
// before Serve; calling it afterward panics with a *UsageError.
func (tc *TestContext) AllowHTTP1(enabled bool) *TestContext {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	tc.mustNotServe("allow http1")
	tc.http1 = enabled
	return tc
}

// AllowHTTP2 enables or disables HTTP/2 (h2c) connections to the ephemeral server. It must be
// called before Serve; calling it afterward panics with a *UsageError.
func (tc *TestContext) AllowHTTP2(enabled bool) *TestContext {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	tc.mustNotServe("allow http2")
	tc.http2 = enabled
	return tc
}

// AllowsBoth reports whether both HTTP/1 and HTTP/2 are enabled.
func (tc *TestContext) AllowsBoth() bool {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	return tc.http1 && tc.http2
}

func (tc *TestContext) mustNotServe(op string) {
	if tc.server != nil {
		panic(usageErrorf(op, "cannot change protocols after the ephemeral server has started serving"))
	}
}

// Serve starts the ephemeral server on a loopback address chosen by the operating system and
// returns once it is listening. Connections are served in the background until Close.
func (tc *TestContext) Serve(service Service) error {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	if tc.server != nil {
		return usageErrorf("serve", "ephemeral server is already serving")
	}
	if service == nil {
		return usageErrorf("serve", "no service to serve")
	}
	proto, err := selectProtocol(tc.http1, tc.http2)
	if err != nil {
		return err
	}
	srv, err := startServer(tc.ctx, service, proto, tc.loggers)
	if err != nil {
		return fmt.Errorf("starting ephemeral server: %w", err)
	}
	tc.server = srv
	return nil
}

// ServeHandler is shorthand for Serve(HandlerService(h)).
func (tc *TestContext) ServeHandler(h http.Handler) error {
	return tc.Serve(HandlerService(h))
}

// ServerAddr returns the address the ephemeral server is bound to, or nil if it is not serving.
func (tc *TestContext) ServerAddr() *net.TCPAddr {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	if tc.server == nil {
		return nil
	}
	return tc.server.addr()
}

// BaseURL returns "http://" plus ServerAddr, or "" if the server is not serving.
func (tc *TestContext) BaseURL() string {
	addr := tc.ServerAddr()
	if addr == nil {
		return ""
	}
	return "http://" + addr.String()
}

// Request sends a request to the ephemeral server. mutate, if not nil, can change the request
// before it is sent. A nil ctx means the TestContext's own context.
//
// Transport failures are returned as *client.TransportError and are never retried.
func (tc *TestContext) Request(
	ctx context.Context,
	path string,
	method string,
	body []byte,
	mutate func(*http.Request),
) (*http.Response, error) {
	c, err := tc.httpClient()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = tc.ctx
	}
	return c.Do(ctx, method, path, body, mutate)
}

// Client returns the client bound to the ephemeral server. It fails with a *UsageError if the
// server is not serving.
func (tc *TestContext) Client() (*client.Client, error) {
	return tc.httpClient()
}

func (tc *TestContext) httpClient() (*client.Client, error) {
	tc.lock.Lock()
	srv := tc.server
	tc.lock.Unlock()
	if srv == nil {
		return nil, usageErrorf("request", "ephemeral server is not serving")
	}
	tc.clientOnce.Do(func() {
		tc.client = client.New("http://"+srv.addr().String(), client.Options{
			HTTP2PriorKnowledge: srv.protocol == protocolHTTP2,
		})
	})
	return tc.client, nil
}

// Errorf records a failure without stopping the test.
func (tc *TestContext) Errorf(format string, args ...interface{}) {
	if tc.standalone {
		tc.t.Helper()
		tc.t.Errorf(format, args...)
		return
	}
	tc.recordError(fmt.Errorf(format, args...))
}

// FailNow marks the test failed and stops the body. Like testing.T.FailNow, it must be called
// from the goroutine running the body.
func (tc *TestContext) FailNow() {
	if tc.standalone {
		tc.t.FailNow()
	}
	tc.lock.Lock()
	tc.failed = true
	tc.lock.Unlock()
	panic(tc)
}

// Skip stops the body and reports the test as skipped. Teardown still runs.
func (tc *TestContext) Skip(reason string) {
	if tc.standalone {
		tc.t.Skip(reason)
	}
	tc.lock.Lock()
	tc.skipped = true
	tc.skipReason = reason
	tc.lock.Unlock()
	panic(tc)
}

// Failed reports whether Errorf or FailNow has been called.
func (tc *TestContext) Failed() bool {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	return tc.failed
}

// Errors returns the failures recorded so far.
func (tc *TestContext) Errors() []error {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	return append([]error(nil), tc.errors...)
}

// Close stops the ephemeral server and releases the test's containers, last started first.
// The server gets the configured grace period to finish open connections before they are
// closed forcibly. Close is idempotent; later calls return the first result.
func (tc *TestContext) Close() error {
	tc.closeOnce.Do(func() {
		tc.lock.Lock()
		srv := tc.server
		tc.lock.Unlock()

		tc.clientOnce.Do(func() {})
		if tc.client != nil {
			tc.client.CloseIdleConnections()
		}
		if srv != nil {
			srv.close(tc.cfg.GracePeriod)
			tc.loggers.Debugf("Ephemeral server on %s stopped", srv.addr())
		}
		tc.cancel()

		if err := tc.containers.release(context.WithoutCancel(tc.ctx)); err != nil {
			tc.closeErr = fmt.Errorf("releasing containers: %w", err)
		}
	})
	return tc.closeErr
}

func (tc *TestContext) isFailNow(r interface{}) bool {
	c, ok := r.(*TestContext)
	return ok && c == tc
}

func reformatError(err error) error {
	var uerr *UsageError
	if errors.As(err, &uerr) {
		return fmt.Errorf("usage error: %s", uerr)
	}
	return err
}
