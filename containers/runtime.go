package containers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/testcontainers/testcontainers-go"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/launchdarkly/go-server-testkit/framework"
)

const (
	NameValkey   = "valkey"
	NameRedis    = "redis"
	NamePostgres = "postgres"
	NameGeneric  = "generic"
)

// Runtime is the framework.ContainerRuntime backed by testcontainers-go.
type Runtime struct{}

func (Runtime) Name() string {
	return "testcontainers"
}

// Release terminates anything that can be terminated: containers created by this package and
// raw testcontainers handles returned by custom factories. Other values are left alone.
func (Runtime) Release(ctx context.Context, container interface{}) error {
	switch c := container.(type) {
	case interface{ Terminate(context.Context) error }:
		return c.Terminate(ctx)
	case testcontainers.Container:
		return testcontainers.TerminateContainer(c, testcontainers.StopContext(ctx))
	}
	return nil
}

// RegisterDefaults registers the built-in container factories on scope.
func RegisterDefaults(scope *framework.Scope) *framework.Scope {
	return scope.
		Container(NameValkey, Provide(Valkey{})).
		Container(NameRedis, Provide(Redis{})).
		Container(NamePostgres, Provide(Postgres{})).
		ContainerCall(NameGeneric, func(ctx context.Context, args []ldvalue.Value) (interface{}, error) {
			image, err := GenericFromArgs(args)
			if err != nil {
				return nil, err
			}
			return Start(ctx, image)
		})
}

// GenericFromArgs decodes the arguments of generic(image, tag, port). Only image is required;
// port may be a number (taken as TCP) or a string such as "53/udp".
func GenericFromArgs(args []ldvalue.Value) (Generic, error) {
	if len(args) == 0 || len(args) > 3 {
		return Generic{}, fmt.Errorf("%s expects 1 to 3 arguments (image, tag, port), got %d", NameGeneric, len(args))
	}
	var g Generic
	if args[0].Type() != ldvalue.StringType || args[0].StringValue() == "" {
		return Generic{}, fmt.Errorf("%s: image must be a non-empty string, got %s", NameGeneric, args[0].JSONString())
	}
	g.Repository = args[0].StringValue()
	if len(args) > 1 {
		if args[1].Type() != ldvalue.StringType {
			return Generic{}, fmt.Errorf("%s: tag must be a string, got %s", NameGeneric, args[1].JSONString())
		}
		g.Tag = args[1].StringValue()
	}
	if len(args) > 2 {
		switch {
		case args[2].IsInt() && args[2].IntValue() > 0:
			g.Port = strconv.Itoa(args[2].IntValue()) + "/tcp"
		case args[2].Type() == ldvalue.StringType && args[2].StringValue() != "":
			g.Port = args[2].StringValue()
		default:
			return Generic{}, fmt.Errorf("%s: port must be a number or a string such as \"80/tcp\", got %s",
				NameGeneric, args[2].JSONString())
		}
	}
	return g, nil
}
