package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func requireParseError(t *testing.T, src string, expectedMessage string) {
	t.Helper()
	_, err := Parse(src)
	require.Error(t, err, "expected %q to be rejected", src)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Msg, expectedMessage)
}

func TestParseEmpty(t *testing.T) {
	for _, src := range []string{"", "   ", "\n\t"} {
		s, err := Parse(src)
		require.NoError(t, err)
		assert.True(t, s.IsEmpty())
	}
}

func TestParseBareHooks(t *testing.T) {
	s, err := Parse("setup, router, teardown")
	require.NoError(t, err)
	assert.Equal(t, &HookRef{Name: "setup", Implicit: true}, s.Setup)
	assert.Equal(t, &HookRef{Name: "teardown", Implicit: true}, s.Teardown)
	assert.Equal(t, &HookRef{Name: "router", Implicit: true}, s.Router)
	assert.Empty(t, s.Containers)
}

func TestParseHookValues(t *testing.T) {
	s, err := Parse(`setup = "prepare", teardown = fixtures.cleanup, router = newRouter,`)
	require.NoError(t, err)
	assert.Equal(t, &HookRef{Name: "prepare"}, s.Setup)
	assert.Equal(t, &HookRef{Name: "fixtures.cleanup"}, s.Teardown)
	assert.Equal(t, &HookRef{Name: "newRouter"}, s.Router)
}

func TestParseSetupDoesNotReplaceTeardown(t *testing.T) {
	s, err := Parse(`teardown = "down", setup = "up"`)
	require.NoError(t, err)
	assert.Equal(t, "down", s.Teardown.Name)
	assert.Equal(t, "up", s.Setup.Name)
}

func TestParseContainers(t *testing.T) {
	s, err := Parse(`containers = ["a", path.b, generic("nginx", 1, -2, 1.5, true, nil, 'x', ` + "`raw`" + `)]`)
	require.NoError(t, err)
	require.Len(t, s.Containers, 3)
	assert.Equal(t, NamedReference{Name: "a"}, s.Containers[0])
	assert.Equal(t, NamedReference{Name: "path.b"}, s.Containers[1])

	call, ok := s.Containers[2].(InlineCall)
	require.True(t, ok)
	assert.Equal(t, "generic", call.Func)
	assert.Equal(t, []ldvalue.Value{
		ldvalue.String("nginx"),
		ldvalue.Int(1),
		ldvalue.Int(-2),
		ldvalue.Float64(1.5),
		ldvalue.Bool(true),
		ldvalue.Null(),
		ldvalue.String("x"),
		ldvalue.String("raw"),
	}, call.Args)
	assert.Equal(t, "generic", ProviderName(call))
}

func TestParseContainersPreservesOrder(t *testing.T) {
	s, err := Parse(`containers = [c, "b", a]`)
	require.NoError(t, err)
	var names []string
	for _, c := range s.Containers {
		names = append(names, ProviderName(c))
	}
	assert.Equal(t, []string{"c", "b", "a"}, names)
}

func TestParseContainersEmptyList(t *testing.T) {
	s, err := Parse(`containers = []`)
	require.NoError(t, err)
	assert.Empty(t, s.Containers)
}

func TestParseMultiline(t *testing.T) {
	s, err := Parse(`
		containers = [
			"valkey",
			postgres,
		],
		setup,
		router = "newRouter"
	`)
	require.NoError(t, err)
	assert.Len(t, s.Containers, 2)
	assert.NotNil(t, s.Setup)
	assert.Equal(t, "newRouter", s.Router.Name)
}

func TestParseMultilineWithoutTrailingComma(t *testing.T) {
	s, err := Parse("containers = [\n\t\"a\",\n\t\"b\"\n]")
	require.NoError(t, err)
	require.Len(t, s.Containers, 2)
	assert.Equal(t, "b", ProviderName(s.Containers[1]))

	s, err = Parse("containers = [\n\ta,\n\ttagged(\"v1\", 2)\n\t\n],\nsetup")
	require.NoError(t, err)
	require.Len(t, s.Containers, 2)
	assert.Equal(t, "tagged", ProviderName(s.Containers[1]))
	assert.NotNil(t, s.Setup)
}

func TestStringKeepsExplicitEmptyContainers(t *testing.T) {
	s, err := Parse(`containers = [], setup`)
	require.NoError(t, err)
	assert.Equal(t, "containers = [], setup", s.String())

	requireParseError(t, s.String()+`, containers = [a]`, "containers are already defined")

	s, err = Parse(`setup`)
	require.NoError(t, err)
	assert.Equal(t, "setup", s.String())
}

func TestParseRejectsDuplicateHooks(t *testing.T) {
	requireParseError(t, `teardown = "a", teardown = "b"`, "cannot overwrite an existing teardown function")
	requireParseError(t, `teardown, teardown`, "cannot overwrite an existing teardown function")
	requireParseError(t, `setup, setup = x`, "cannot overwrite an existing setup function")
	requireParseError(t, `router, router`, "router is already defined")
	requireParseError(t, `containers = [a], containers = [b]`, "containers are already defined")
}

func TestParseRejectsUnknownKey(t *testing.T) {
	requireParseError(t, `setup, cleanup`, `unexpected token "cleanup"`)
	requireParseError(t, `"setup"`, `unexpected token "\"setup\""`)
}

func TestParseRejectsMalformedElements(t *testing.T) {
	requireParseError(t, `containers = [42]`, "expected a literal string, a path to a function, or a call expression: 42")
	requireParseError(t, `containers = [a + b]`, "a + b")
	requireParseError(t, `containers = ["not a name"]`, "is not a valid function name")
	requireParseError(t, `containers = [f(x)]`, "only literals are allowed")
	requireParseError(t, `containers = [a`, "unterminated containers list")
	requireParseError(t, `containers [a]`, "expected '='")
}

func TestParseRejectsMalformedHookValues(t *testing.T) {
	requireParseError(t, `setup = 42`, "for a setup function")
	requireParseError(t, `teardown = f()`, "for a teardown function")
	requireParseError(t, `router =`, "for a router function")
}

func TestParseRequiresCommasBetweenClauses(t *testing.T) {
	requireParseError(t, `setup teardown`, "expected ','")
}

func TestParseErrorHasPosition(t *testing.T) {
	_, err := Parse(`setup, bogus`)
	require.Error(t, err)
	assert.Equal(t, `1:8: unexpected token "bogus", expected one of containers, teardown, setup, router`, err.Error())
}

func TestSpecificationStringRoundTrip(t *testing.T) {
	for _, src := range []string{
		`containers = [a, pkg.b, generic("nginx", 2)], setup, teardown = cleanup, router = newRouter`,
		`setup = prepare`,
		``,
	} {
		s, err := Parse(src)
		require.NoError(t, err)
		again, err := Parse(s.String())
		require.NoError(t, err, "re-parsing %q", s.String())
		assert.Equal(t, s.String(), again.String())
		assert.Equal(t, len(s.Containers), len(again.Containers))
	}
}

func TestMustParsePanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus") })
	assert.NotPanics(t, func() { MustParse("setup") })
}
