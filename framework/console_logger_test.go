package framework

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/launchdarkly/go-server-testkit/logging"
)

func TestConsoleTestLogger(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	var buf bytes.Buffer
	l := &ConsoleTestLogger{Out: &buf, ShowPhases: true, DebugOutputOnFailure: true}
	id := TestID{Path: []string{"TestThing", "sub"}}
	output := logging.CapturedOutput{{Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Message: "hi"}}

	l.TestStarted(id)
	l.PhaseStarted(id, PhaseBody)
	l.TestError(id, errors.New("line one\nline two"))
	l.TestError(id, TestFailure{ID: id, Err: errors.New("line three")})
	l.TestFinished(id, true, output)
	l.TestSkipped(id, "later")

	assert.Equal(t, "[TestThing/sub]\n"+
		"  body\n"+
		"  line one\n"+
		"  line two\n"+
		"  line three\n"+
		"  FAILED: TestThing/sub\n"+
		"    DEBUG [2026-01-02 03:04:05.000] hi\n"+
		"  SKIPPED: TestThing/sub (later)\n", buf.String())

	buf.Reset()
	l.TestFinished(id, false, output)
	assert.Empty(t, buf.String())
}
