// Package framework runs harnessed tests: tests whose fixtures are described by a short
// declarative specification instead of being set up by hand.
//
// The general model is:
//
// 1. A Scope holds named setup and teardown hooks, routers, and container factories.
//
// 2. A specification such as `containers = ["valkey"], setup, router = newRouter` is parsed by
// package spec and compiled against the Scope into a Plan. Names that do not resolve are
// reported before the test starts.
//
// 3. Running the Plan creates a TestContext, runs setup, starts the containers in order, serves
// the router on an ephemeral loopback port, runs the test body, runs teardown whatever the
// body's outcome, and finally closes the server and releases the containers.
//
// The TestContext is similar to Go's *testing.T: it accumulates failures, can be passed to
// testify assertions, and captures debug output that is shown only if the test fails.
package framework
