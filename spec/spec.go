// Package spec parses the declarative configuration attached to a harnessed test.
//
// A specification is a comma-separated list of clauses:
//
//	containers = ["valkey", fixtures.Postgres, generic("nginx", "1.27")],
//	setup,
//	teardown = cleanup,
//	router = "newRouter",
//
// Names are not resolved here; they are resolved against a framework.Scope when the
// specification is compiled into a runnable plan.
package spec

import (
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	KeyContainers = "containers"
	KeyTeardown   = "teardown"
	KeySetup      = "setup"
	KeyRouter     = "router"
)

// TestSpecification is the normalized configuration for one test.
type TestSpecification struct {
	Containers []ContainerProvider
	Setup      *HookRef
	Teardown   *HookRef
	Router     *HookRef
}

// HookRef names a hook function. Implicit is true if the clause was written without a value,
// in which case Name is the clause keyword itself.
type HookRef struct {
	Name     string
	Implicit bool
}

// ContainerProvider is one element of a containers clause. It is either a NamedReference or
// an InlineCall.
type ContainerProvider interface {
	providerName() string
	String() string
}

// NamedReference names a zero-argument container factory.
type NamedReference struct {
	Name string
}

// InlineCall is a call expression evaluated in place by a parameterized container factory.
// Args holds the decoded literal arguments.
type InlineCall struct {
	Func   string
	Args   []ldvalue.Value
	Source string
}

func (n NamedReference) providerName() string { return n.Name }
func (n NamedReference) String() string       { return n.Name }

func (c InlineCall) providerName() string { return c.Func }

func (c InlineCall) String() string {
	if c.Source != "" {
		return c.Source
	}
	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		args = append(args, a.JSONString())
	}
	return c.Func + "(" + strings.Join(args, ", ") + ")"
}

// ProviderName returns the factory name a provider refers to.
func ProviderName(p ContainerProvider) string {
	return p.providerName()
}

// IsEmpty is true if the specification has no hooks and no containers.
func (s TestSpecification) IsEmpty() bool {
	return len(s.Containers) == 0 && s.Setup == nil && s.Teardown == nil && s.Router == nil
}

// String renders the specification in clause syntax. Parsing the result yields an equal
// specification. An explicit empty list is kept as "containers = []".
func (s TestSpecification) String() string {
	var clauses []string
	if s.Containers != nil {
		elems := make([]string, 0, len(s.Containers))
		for _, c := range s.Containers {
			elems = append(elems, c.String())
		}
		clauses = append(clauses, KeyContainers+" = ["+strings.Join(elems, ", ")+"]")
	}
	for _, h := range []struct {
		key string
		ref *HookRef
	}{{KeySetup, s.Setup}, {KeyTeardown, s.Teardown}, {KeyRouter, s.Router}} {
		switch {
		case h.ref == nil:
		case h.ref.Implicit:
			clauses = append(clauses, h.key)
		default:
			clauses = append(clauses, h.key+" = "+h.ref.Name)
		}
	}
	return strings.Join(clauses, ", ")
}
