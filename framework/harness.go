package framework

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"testing"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/launchdarkly/go-server-testkit/spec"
)

// Hook is a setup or teardown function.
type Hook func(ctx context.Context, tc *TestContext) error

// RouterFunc builds the service that a test's ephemeral server will serve.
type RouterFunc func() (Service, error)

// ContainerFactory starts a container. The value it returns is pushed into the test's container
// registry, where the test body can find it by its concrete type.
type ContainerFactory func(ctx context.Context) (interface{}, error)

// ContainerCallFactory is a container factory that takes the literal arguments of an inline call
// such as generic("nginx", "1.27").
type ContainerCallFactory func(ctx context.Context, args []ldvalue.Value) (interface{}, error)

// Body is the test body run by a Plan.
type Body func(tc *TestContext) error

// Scope holds the named hooks, routers, and container factories that specifications refer to.
// A package typically builds one Scope in a package-level variable and uses it from every test:
//
//	var scope = framework.NewScope().
//		Setup("setup", seedDatabase).
//		Router("newRouter", newRouter)
//
//	func TestHello(t *testing.T) {
//		scope.Run(t, `setup, router = newRouter`, func(tc *framework.TestContext) error {
//			...
//		})
//	}
//
// Registration is safe to interleave with running tests.
type Scope struct {
	lock       sync.RWMutex
	setups     map[string]Hook
	teardowns  map[string]Hook
	routers    map[string]RouterFunc
	containers map[string]ContainerFactory
	calls      map[string]ContainerCallFactory
	cfg        *Config
	testLogger TestLogger
}

// NewScope creates an empty Scope.
func NewScope() *Scope {
	return &Scope{
		setups:     make(map[string]Hook),
		teardowns:  make(map[string]Hook),
		routers:    make(map[string]RouterFunc),
		containers: make(map[string]ContainerFactory),
		calls:      make(map[string]ContainerCallFactory),
	}
}

func (s *Scope) Setup(name string, h Hook) *Scope {
	s.lock.Lock()
	s.setups[name] = h
	s.lock.Unlock()
	return s
}

func (s *Scope) Teardown(name string, h Hook) *Scope {
	s.lock.Lock()
	s.teardowns[name] = h
	s.lock.Unlock()
	return s
}

func (s *Scope) Router(name string, f RouterFunc) *Scope {
	s.lock.Lock()
	s.routers[name] = f
	s.lock.Unlock()
	return s
}

// Handler registers a router that serves a plain http.Handler.
func (s *Scope) Handler(name string, f func() http.Handler) *Scope {
	return s.Router(name, func() (Service, error) {
		return HandlerService(f()), nil
	})
}

func (s *Scope) Container(name string, f ContainerFactory) *Scope {
	s.lock.Lock()
	s.containers[name] = f
	s.lock.Unlock()
	return s
}

func (s *Scope) ContainerCall(name string, f ContainerCallFactory) *Scope {
	s.lock.Lock()
	s.calls[name] = f
	s.lock.Unlock()
	return s
}

// WithConfig fixes the configuration of tests run from this scope. Without it, each plan reads
// ConfigFromEnv when it is compiled.
func (s *Scope) WithConfig(cfg Config) *Scope {
	s.lock.Lock()
	s.cfg = &cfg
	s.lock.Unlock()
	return s
}

// WithTestLogger adds a reporter that receives lifecycle events, in addition to the test log.
func (s *Scope) WithTestLogger(l TestLogger) *Scope {
	s.lock.Lock()
	s.testLogger = l
	s.lock.Unlock()
	return s
}

type namedHook struct {
	name string
	hook Hook
}

type containerStep struct {
	name   string
	create ContainerFactory
}

// Plan is a specification whose names have all been resolved. It can be run any number of times.
type Plan struct {
	spec       spec.TestSpecification
	setup      *namedHook
	teardown   *namedHook
	routerName string
	router     RouterFunc
	containers []containerStep
	cfg        Config
	runtime    ContainerRuntime
	testLogger TestLogger
}

// Compile resolves every name in ts against the scope. All unresolved names are reported
// together in a *ConfigError.
func (s *Scope) Compile(ts spec.TestSpecification) (*Plan, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	p := &Plan{spec: ts, testLogger: s.testLogger}
	var errs []error

	if s.cfg != nil {
		p.cfg = *s.cfg
	} else {
		cfg, err := ConfigFromEnv()
		if err != nil {
			errs = append(errs, err)
		}
		p.cfg = cfg
	}

	resolveHook := func(kind string, ref *spec.HookRef, hooks map[string]Hook) *namedHook {
		if ref == nil {
			return nil
		}
		h, ok := hooks[ref.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("no %s hook named %q", kind, ref.Name))
			return nil
		}
		return &namedHook{name: ref.Name, hook: h}
	}
	p.setup = resolveHook(spec.KeySetup, ts.Setup, s.setups)
	p.teardown = resolveHook(spec.KeyTeardown, ts.Teardown, s.teardowns)

	if ts.Router != nil {
		if r, ok := s.routers[ts.Router.Name]; ok {
			p.routerName, p.router = ts.Router.Name, r
		} else {
			errs = append(errs, fmt.Errorf("no router named %q", ts.Router.Name))
		}
	}

	for _, provider := range ts.Containers {
		switch c := provider.(type) {
		case spec.NamedReference:
			f, ok := s.containers[c.Name]
			if !ok {
				errs = append(errs, fmt.Errorf("no container factory named %q", c.Name))
				continue
			}
			p.containers = append(p.containers, containerStep{name: c.Name, create: f})
		case spec.InlineCall:
			f, ok := s.calls[c.Func]
			if !ok {
				errs = append(errs, fmt.Errorf("no parameterized container factory named %q", c.Func))
				continue
			}
			args := c.Args
			p.containers = append(p.containers, containerStep{
				name: c.String(),
				create: func(ctx context.Context) (interface{}, error) {
					return f(ctx, args)
				},
			})
		}
	}

	if len(ts.Containers) > 0 {
		p.runtime = EnabledContainerRuntime()
		if p.runtime == nil {
			errs = append(errs, errors.New("containers were requested but no container runtime is enabled "+
				"(import github.com/launchdarkly/go-server-testkit/containers or call framework.EnableContainers)"))
		}
	}

	if len(errs) > 0 {
		return nil, &ConfigError{Spec: ts.String(), Err: errors.Join(errs...)}
	}
	return p, nil
}

// Run parses clauses, compiles them, and runs body as the test t. A specification that does not
// parse or compile fails the test before anything is started.
func (s *Scope) Run(t testing.TB, clauses string, body Body) TestResult {
	t.Helper()
	ts, err := spec.Parse(clauses)
	if err != nil {
		t.Fatalf("%s", &ConfigError{Spec: clauses, Err: err})
	}
	return s.RunSpec(t, ts, body)
}

// RunSpec is like Run for an already parsed specification.
func (s *Scope) RunSpec(t testing.TB, ts spec.TestSpecification, body Body) TestResult {
	t.Helper()
	p, err := s.Compile(ts)
	if err != nil {
		t.Fatalf("%s", err)
	}
	return p.Run(t, body)
}

// RunSuite runs each body as a subtest named after its entry in suite, with that entry's
// specification. Every entry needs a body and every body needs an entry.
func (s *Scope) RunSuite(t *testing.T, suite spec.Suite, bodies map[string]Body) {
	t.Helper()
	for _, name := range suite.Names() {
		body, ok := bodies[name]
		if !ok {
			t.Errorf("no test body for suite entry %q", name)
			continue
		}
		ts := suite[name]
		t.Run(name, func(t *testing.T) {
			s.RunSpec(t, ts, body)
		})
	}
	for name := range bodies {
		if _, ok := suite[name]; !ok {
			t.Errorf("test body %q has no suite entry", name)
		}
	}
}

// Wrap returns a function that runs body with the plan, for use with t.Run.
func Wrap(p *Plan, body Body) func(*testing.T) {
	return func(t *testing.T) {
		t.Helper()
		p.Run(t, body)
	}
}

// Spec returns the specification the plan was compiled from.
func (p *Plan) Spec() spec.TestSpecification {
	return p.spec
}

// Run executes the plan as the test t. If the test failed, Run calls t.FailNow after cleaning up;
// if it was skipped, t.SkipNow.
func (p *Plan) Run(t testing.TB, body Body) TestResult {
	t.Helper()
	result := p.execute(t, body)
	switch {
	case result.Failed:
		t.FailNow()
	case result.Skipped:
		t.SkipNow()
	}
	return result
}

// execute runs every phase and reports the outcome to t with t.Errorf, but leaves stopping the
// test to the caller.
func (p *Plan) execute(t testing.TB, body Body) TestResult {
	t.Helper()
	var reporter TestLogger = tbTestLogger{t: t, verbose: p.cfg.Verbose}
	if p.testLogger != nil {
		reporter = multiTestLogger{reporter, p.testLogger}
	}
	if id := testIDFor(t); !p.cfg.Skip.AsSkipFilter()(id) {
		reporter.TestStarted(id)
		reporter.TestSkipped(id, "excluded by filter parameters")
		return TestResult{TestID: id, Skipped: true}
	}
	tc := newTestContext(t, p.cfg, reporter, p.runtime)
	reporter.TestStarted(tc.id)

	setupOK := tc.runPhase(PhaseSetup, p.runSetup)
	if setupOK && tc.runPhase(PhaseContainers, p.startContainers) &&
		tc.runPhase(PhaseServe, p.serve) {
		tc.runPhase(PhaseBody, func(tc *TestContext) error { return body(tc) })
	}
	if setupOK && p.teardown != nil {
		tc.runPhase(PhaseTeardown, p.runTeardown)
	}
	tc.runPhase(PhaseClose, func(tc *TestContext) error { return tc.Close() })

	tc.lock.Lock()
	result := TestResult{
		TestID:  tc.id,
		Errors:  append([]error(nil), tc.errors...),
		Failed:  tc.failed,
		Skipped: tc.skipped && !tc.failed,
	}
	skipReason := tc.skipReason
	tc.lock.Unlock()

	if result.Failed && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, errors.New("test failed with no failure message"))
	}
	for _, err := range result.Errors {
		t.Errorf("%s", reformatError(err))
	}

	if result.Skipped {
		reporter.TestSkipped(tc.id, skipReason)
	} else {
		reporter.TestFinished(tc.id, result.Failed, tc.DebugOutput())
	}
	if result.Failed {
		t.Logf("rerun with: %s", RerunCommand(tc.id))
	}
	return result
}

func (p *Plan) runSetup(tc *TestContext) error {
	if p.setup == nil {
		return nil
	}
	if err := p.setup.hook(tc.ctx, tc); err != nil {
		return fmt.Errorf("%s hook %q: %w", spec.KeySetup, p.setup.name, err)
	}
	return nil
}

func (p *Plan) runTeardown(tc *TestContext) error {
	if err := p.teardown.hook(tc.ctx, tc); err != nil {
		return fmt.Errorf("%s hook %q: %w", spec.KeyTeardown, p.teardown.name, err)
	}
	return nil
}

func (p *Plan) startContainers(tc *TestContext) error {
	for _, step := range p.containers {
		tc.loggers.Debugf("Starting container %s", step.name)
		v, err := step.create(tc.ctx)
		if err != nil {
			return fmt.Errorf("container %q: %w", step.name, err)
		}
		if v == nil {
			return fmt.Errorf("container %q: factory returned nil", step.name)
		}
		tc.containers.Push(v)
	}
	return nil
}

func (p *Plan) serve(tc *TestContext) error {
	if p.router == nil {
		return nil
	}
	service, err := p.router()
	if err != nil {
		return fmt.Errorf("router %q: %w", p.routerName, err)
	}
	if err := tc.Serve(service); err != nil {
		return fmt.Errorf("router %q: %w", p.routerName, err)
	}
	tc.loggers.Debugf("Serving %q on %s", p.routerName, tc.ServerAddr())
	return nil
}

// runPhase runs one lifecycle step, turning a returned error or a panic into a recorded failure.
// It returns false if the test should not go on to later steps.
func (tc *TestContext) runPhase(phase Phase, action func(*TestContext) error) (ok bool) {
	tc.reporter.PhaseStarted(tc.id, phase)
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if tc.isFailNow(r) {
				return
			}
			if uerr, isUsage := r.(*UsageError); isUsage {
				tc.recordError(uerr)
				return
			}
			tc.recordError(fmt.Errorf("unexpected panic in %s: %+v\n%s", phase, r, string(debug.Stack())))
		}
	}()
	if err := action(tc); err != nil {
		tc.recordError(err)
		return false
	}
	return true
}

func (tc *TestContext) recordError(err error) {
	tc.lock.Lock()
	tc.failed = true
	tc.errors = append(tc.errors, err)
	tc.lock.Unlock()
	tc.reporter.TestError(tc.id, TestFailure{ID: tc.id, Err: reformatError(err)})
}
