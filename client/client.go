package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// Options configures a Client.
type Options struct {
	// HTTP2PriorKnowledge makes the client speak HTTP/2 over cleartext without an upgrade
	// (h2c with prior knowledge). Use this for servers that only accept HTTP/2.
	HTTP2PriorKnowledge bool

	// Timeout limits the whole exchange, including reading the response body. Zero means no
	// timeout.
	Timeout time.Duration
}

// Client sends requests to a single server whose base URL is known in advance, such as an
// ephemeral server owned by a test. It is safe for concurrent use. Failed requests are never
// retried.
type Client struct {
	baseURL string
	http    *http.Client
}

// TransportError is returned when a request could not be completed at the transport level:
// the connection failed, the server closed it, or the exchange timed out.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// New creates a Client for the given base URL, e.g. "http://127.0.0.1:34567".
func New(baseURL string, opts Options) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Transport: newTransport(opts),
			Timeout:   opts.Timeout,
			// Redirects are part of what a service under test does; callers should see them.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func newTransport(opts Options) http.RoundTripper {
	if opts.HTTP2PriorKnowledge {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	}
	return &http.Transport{
		Proxy:               nil,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
	}
}

// BaseURL returns the URL that request paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NewRequest builds a request for path relative to the base URL. A nil body sends no body.
func (c *Client) NewRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	return http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
}

// Do builds a request, lets mutate adjust it (headers, query, etc.), and sends it. mutate may
// be nil.
func (c *Client) Do(
	ctx context.Context,
	method string,
	path string,
	body []byte,
	mutate func(*http.Request),
) (*http.Response, error) {
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(req)
	}
	return c.Send(req)
}

// Send dispatches an already built request.
func (c *Client) Send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: unwrapURLError(err)}
	}
	return resp, nil
}

// CloseIdleConnections closes any pooled connections that are not in use.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func unwrapURLError(err error) error {
	if uerr, ok := err.(interface{ Unwrap() error }); ok {
		if inner := uerr.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}
