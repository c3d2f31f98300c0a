package framework

import (
	"strings"
	"testing"

	"github.com/launchdarkly/go-server-testkit/logging"
)

// Phase is one step of a harnessed test's lifecycle.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseContainers Phase = "containers"
	PhaseServe      Phase = "router"
	PhaseBody       Phase = "body"
	PhaseTeardown   Phase = "teardown"
	PhaseClose      Phase = "close"
)

// TestLogger receives lifecycle events for harnessed tests. It is purely for reporting: test
// failures are always delivered to the testing.T as well.
type TestLogger interface {
	TestStarted(id TestID)
	PhaseStarted(id TestID, phase Phase)
	TestError(id TestID, err error)
	TestFinished(id TestID, failed bool, debugOutput logging.CapturedOutput)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID)                                {}
func (n nullTestLogger) PhaseStarted(TestID, Phase)                        {}
func (n nullTestLogger) TestError(TestID, error)                           {}
func (n nullTestLogger) TestFinished(TestID, bool, logging.CapturedOutput) {}
func (n nullTestLogger) TestSkipped(TestID, string)                        {}

// tbTestLogger writes through t.Logf so that output is attached to the right test by go test.
// Errors are not logged here because the harness reports them with t.Errorf.
type tbTestLogger struct {
	t       testing.TB
	verbose bool
}

func (l tbTestLogger) TestStarted(id TestID) {
	if l.verbose {
		l.t.Logf("[%s] started", id)
	}
}

func (l tbTestLogger) PhaseStarted(id TestID, phase Phase) {
	if l.verbose {
		l.t.Logf("[%s] %s", id, phase)
	}
}

func (l tbTestLogger) TestError(TestID, error) {}

func (l tbTestLogger) TestFinished(id TestID, failed bool, debugOutput logging.CapturedOutput) {
	if len(debugOutput) == 0 || !(failed || l.verbose) {
		return
	}
	var buf strings.Builder
	debugOutput.Dump(&buf, "    DEBUG ")
	l.t.Logf("[%s] debug output:\n%s", id, buf.String())
}

func (l tbTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		l.t.Logf("SKIPPED: %s", id)
	} else {
		l.t.Logf("SKIPPED: %s (%s)", id, reason)
	}
}

type multiTestLogger []TestLogger

func (m multiTestLogger) TestStarted(id TestID) {
	for _, l := range m {
		l.TestStarted(id)
	}
}

func (m multiTestLogger) PhaseStarted(id TestID, phase Phase) {
	for _, l := range m {
		l.PhaseStarted(id, phase)
	}
}

func (m multiTestLogger) TestError(id TestID, err error) {
	for _, l := range m {
		l.TestError(id, err)
	}
}

func (m multiTestLogger) TestFinished(id TestID, failed bool, debugOutput logging.CapturedOutput) {
	for _, l := range m {
		l.TestFinished(id, failed, debugOutput)
	}
}

func (m multiTestLogger) TestSkipped(id TestID, reason string) {
	for _, l := range m {
		l.TestSkipped(id, reason)
	}
}
