package framework

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ContainerRuntime is the backend that knows how to dispose of the containers a test started.
// Containers can only be requested in a specification once a runtime is enabled; importing
// the containers package enables the testcontainers-based one.
type ContainerRuntime interface {
	Name() string
	Release(ctx context.Context, container interface{}) error
}

var (
	containerRuntime     ContainerRuntime
	containerRuntimeLock sync.RWMutex
)

// EnableContainers installs the container runtime used by every Scope in the process.
func EnableContainers(rt ContainerRuntime) {
	containerRuntimeLock.Lock()
	containerRuntime = rt
	containerRuntimeLock.Unlock()
}

// EnabledContainerRuntime returns the installed runtime, or nil.
func EnabledContainerRuntime() ContainerRuntime {
	containerRuntimeLock.RLock()
	defer containerRuntimeLock.RUnlock()
	return containerRuntime
}

// Containers holds the containers started for one test, in the order they were started. It
// owns them: they are released, last first, when the TestContext is closed.
//
// Containers is not safe for concurrent mutation. It is filled during the sequential container
// phase of a test and only read afterward.
type Containers struct {
	items   []interface{}
	runtime ContainerRuntime
}

// Push appends a container. Several containers of the same type may be pushed.
func (c *Containers) Push(container interface{}) {
	c.items = append(c.items, container)
}

// Len returns the number of containers.
func (c *Containers) Len() int {
	return len(c.items)
}

// All returns the containers in insertion order.
func (c *Containers) All() []interface{} {
	return append([]interface{}(nil), c.items...)
}

// Lookup returns the first container whose dynamic type is exactly T. Interface types never
// match; ask for the concrete type that was pushed.
func Lookup[T any](c *Containers) (T, bool) {
	want := reflect.TypeFor[T]()
	for _, item := range c.items {
		if reflect.TypeOf(item) == want {
			return item.(T), true
		}
	}
	var zero T
	return zero, false
}

func (c *Containers) release(ctx context.Context) error {
	if c.runtime == nil {
		c.items = nil
		return nil
	}
	var errs []error
	for i := len(c.items) - 1; i >= 0; i-- {
		if err := c.runtime.Release(ctx, c.items[i]); err != nil {
			errs = append(errs, fmt.Errorf("releasing container %T: %w", c.items[i], err))
		}
	}
	c.items = nil
	return errors.Join(errs...)
}
