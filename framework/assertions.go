package framework

import (
	"io"
	"net/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSuccessful fails the test unless res has a 2xx status.
func AssertSuccessful(t require.TestingT, res *http.Response) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	if !assert.NotNil(t, res, "no response") {
		return false
	}
	return assert.True(t, res.StatusCode >= 200 && res.StatusCode < 300,
		"expected a successful status for %s, got %s", describeRequest(res), res.Status)
}

// AssertStatusCode fails the test unless res has the given status.
func AssertStatusCode(t require.TestingT, res *http.Response, status int) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	if !assert.NotNil(t, res, "no response") {
		return false
	}
	return assert.Equal(t, status, res.StatusCode, "unexpected status for %s",
		describeRequest(res))
}

// ConsumeBody reads and closes the response body. A read error stops the test.
func ConsumeBody(t require.TestingT, res *http.Response) []byte {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	require.NotNil(t, res, "no response")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "reading response body")
	return data
}

func describeRequest(res *http.Response) string {
	if res.Request == nil || res.Request.URL == nil {
		return "request"
	}
	return res.Request.Method + " " + res.Request.URL.Path
}
