package framework

import (
	"fmt"
	"strings"
	"testing"
)

// TestResult is the outcome of running one test through a Plan.
type TestResult struct {
	TestID  TestID
	Errors  []error
	Failed  bool
	Skipped bool
}

// OK is true if the test neither failed nor was skipped.
func (r TestResult) OK() bool {
	return !r.Failed && !r.Skipped
}

// TestID identifies a test by the path of names that go test uses for it.
type TestID struct {
	Path []string
}

func testIDFor(t testing.TB) TestID {
	return TestID{Path: strings.Split(t.Name(), "/")}
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// TestFailure ties an error to the test it was reported by.
type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

func (f TestFailure) Unwrap() error {
	return f.Err
}
