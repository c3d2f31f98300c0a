package framework

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/launchdarkly/go-server-testkit/logging"
)

var (
	failedColor  = color.New(color.FgRed, color.Bold)
	skippedColor = color.New(color.FgYellow)
	phaseColor   = color.New(color.Faint)
)

// ConsoleTestLogger prints test progress to a terminal, or to Out if it is set. Install it
// with Scope.WithTestLogger to follow a long suite as it runs.
type ConsoleTestLogger struct {
	Out                  io.Writer
	ShowPhases           bool
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c *ConsoleTestLogger) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Fprintf(c.out(), "[%s]\n", id)
}

func (c *ConsoleTestLogger) PhaseStarted(id TestID, phase Phase) {
	if c.ShowPhases {
		phaseColor.Fprintf(c.out(), "  %s\n", phase)
	}
}

func (c *ConsoleTestLogger) TestError(id TestID, err error) {
	// the test is already named by its header line
	var failure TestFailure
	if errors.As(err, &failure) && failure.ID.String() == id.String() {
		err = failure.Err
	}
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(c.out(), "  %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestFinished(id TestID, failed bool, debugOutput logging.CapturedOutput) {
	if failed {
		failedColor.Fprintf(c.out(), "  FAILED: %s\n", id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(c.out(), "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		skippedColor.Fprintf(c.out(), "  SKIPPED: %s\n", id)
	} else {
		skippedColor.Fprintf(c.out(), "  SKIPPED: %s (%s)\n", id, reason)
	}
}
