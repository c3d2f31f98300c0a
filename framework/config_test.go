package framework

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.True(t, c.HTTP1)
	assert.False(t, c.HTTP2)
	assert.Equal(t, 2*time.Second, c.GracePeriod)
	assert.False(t, c.Debug)
	assert.False(t, c.Skip.IsDefined())
}

func TestConfigFromEnvironment(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.applyEnv(envLookup(map[string]string{
		envHTTP1:       "false",
		envHTTP2:       "1",
		envGracePeriod: "250ms",
		envDebug:       "true",
		envVerbose:     "",
		envSkip:        "^TestSlow",
	})))
	assert.False(t, c.HTTP1)
	assert.True(t, c.HTTP2)
	assert.Equal(t, 250*time.Millisecond, c.GracePeriod)
	assert.True(t, c.Debug)
	assert.False(t, c.Verbose)
	assert.True(t, c.Skip.AnyMatch("TestSlowThing/sub"))
}

func TestConfigFromEnvironmentRejectsBadValues(t *testing.T) {
	for name, value := range map[string]string{
		envHTTP2:       "maybe",
		envGracePeriod: "soon",
		envSkip:        "(",
	} {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			err := c.applyEnv(envLookup(map[string]string{name: value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestConfigFromEnvUsesProcessEnvironment(t *testing.T) {
	t.Setenv(envHTTP2, "true")
	c, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, c.HTTP2)
	assert.True(t, c.HTTP1)
}

func TestConfigFlags(t *testing.T) {
	c := DefaultConfig()
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	c.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-testkit.http2", "-testkit.http1=false", "-testkit.grace-period=5s",
		"-testkit.skip", "Flaky", "-testkit.skip", "Slow",
	}))
	assert.True(t, c.HTTP2)
	assert.False(t, c.HTTP1)
	assert.Equal(t, 5*time.Second, c.GracePeriod)
	assert.Equal(t, `"Flaky" or "Slow"`, c.Skip.String())
}
