package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRerunCommand(t *testing.T) {
	assert.Equal(t, `go test -run '^TestHello$'`, RerunCommand(TestID{Path: []string{"TestHello"}}))
	assert.Equal(t, `go test -run '^TestServer$/^HTTP2_only$'`,
		RerunCommand(TestID{Path: []string{"TestServer", "HTTP2_only"}}))
	assert.Equal(t, `go test -run '^TestA$/^case\.1$'`,
		RerunCommand(TestID{Path: []string{"TestA", "case.1"}}))
}

func TestSkipFilter(t *testing.T) {
	var skip RegexList
	assert.True(t, skip.AsSkipFilter()(TestID{Path: []string{"TestA"}}))

	assert.NoError(t, skip.Set("^TestA/slow$"))
	filter := skip.AsSkipFilter()
	assert.False(t, filter(TestID{Path: []string{"TestA", "slow"}}))
	assert.True(t, filter(TestID{Path: []string{"TestA", "fast"}}))
	assert.Error(t, skip.Set("["))
}
