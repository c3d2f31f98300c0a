// Package containers runs the containers requested by a test specification with
// testcontainers-go.
//
// Importing the package enables container support in the framework:
//
//	import _ "github.com/launchdarkly/go-server-testkit/containers"
//
// RegisterDefaults adds the built-in images to a Scope under the names "valkey", "redis", and
// "postgres", plus the parameterized "generic(image, tag, port)".
package containers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"

	"github.com/launchdarkly/go-server-testkit/framework"
	"github.com/launchdarkly/go-server-testkit/logging"
)

func init() {
	framework.EnableContainers(Runtime{})
}

// Container is a started container of image type I.
type Container[I Image] struct {
	image     I
	container testcontainers.Container
}

// Start starts a container and waits until it is ready.
func Start[I Image](ctx context.Context, image I) (*Container[I], error) {
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: image.Request(),
		Started:          true,
		Logger:           requestLogger(),
	})
	if err != nil {
		// GenericContainer can return a container that failed its wait strategy; it still has to
		// be removed.
		if ctr != nil {
			_ = testcontainers.TerminateContainer(ctr)
		}
		return nil, fmt.Errorf("starting %s: %w", image.Request().Image, err)
	}
	return &Container[I]{image: image, container: ctr}, nil
}

// requestLogger silences testcontainers' progress output unless TESTKIT_VERBOSE is set. A nil
// logger means the library default.
func requestLogger() tclog.Logger {
	if cfg, err := framework.ConfigFromEnv(); err == nil && cfg.Verbose {
		return nil
	}
	return logging.NullLogger()
}

// Image returns the image description the container was started from.
func (c *Container[I]) Image() I {
	return c.image
}

// Underlying returns the testcontainers handle, for anything this type does not cover.
func (c *Container[I]) Underlying() testcontainers.Container {
	return c.container
}

// Endpoint returns the host:port that the container's exposed port is mapped to.
func (c *Container[I]) Endpoint(ctx context.Context) (string, error) {
	return c.container.Endpoint(ctx, "")
}

// URL returns a client URL for the container, such as "redis://127.0.0.1:32771".
func (c *Container[I]) URL(ctx context.Context) (string, error) {
	endpoint, err := c.Endpoint(ctx)
	if err != nil {
		return "", err
	}
	return c.image.URL(endpoint), nil
}

// Terminate stops and removes the container.
func (c *Container[I]) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(c.container, testcontainers.StopContext(ctx))
}

// Provide returns a container factory that starts image.
func Provide[I Image](image I) framework.ContainerFactory {
	return func(ctx context.Context) (interface{}, error) {
		return Start(ctx, image)
	}
}
