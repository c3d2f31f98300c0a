package framework

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultGracePeriod = 2 * time.Second

	envHTTP1       = "TESTKIT_HTTP1"
	envHTTP2       = "TESTKIT_HTTP2"
	envGracePeriod = "TESTKIT_GRACE_PERIOD"
	envDebug       = "TESTKIT_DEBUG"
	envVerbose     = "TESTKIT_VERBOSE"
	envSkip        = "TESTKIT_SKIP"
)

// Config holds the settings that apply to every TestContext created by a Scope.
type Config struct {
	// HTTP1 and HTTP2 are the initial protocol flags of each TestContext. Tests can still
	// change them with AllowHTTP1/AllowHTTP2 before serving.
	HTTP1 bool
	HTTP2 bool

	// GracePeriod is how long closing a TestContext waits for in-flight connections before
	// closing them forcibly.
	GracePeriod time.Duration

	// Debug enables debug-level output in each test's log.
	Debug bool

	// Verbose prints lifecycle progress and captured output to the console for every test,
	// not only failed ones.
	Verbose bool

	// Skip lists patterns of full test names (as printed by go test) that are reported as
	// skipped without running any of their phases.
	Skip RegexList
}

// DefaultConfig returns the built-in defaults: HTTP/1 only, two second grace period.
func DefaultConfig() Config {
	return Config{
		HTTP1:       true,
		GracePeriod: defaultGracePeriod,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by any TESTKIT_* environment variables.
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range []struct {
		name string
		dest *bool
	}{
		{envHTTP1, &c.HTTP1},
		{envHTTP2, &c.HTTP2},
		{envDebug, &c.Debug},
		{envVerbose, &c.Verbose},
	} {
		if s, ok := lookup(b.name); ok && s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", b.name, err)
			}
			*b.dest = v
		}
	}
	if s, ok := lookup(envGracePeriod); ok && s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", envGracePeriod, err)
		}
		c.GracePeriod = d
	}
	if s, ok := lookup(envSkip); ok && s != "" {
		if err := c.Skip.Set(s); err != nil {
			return fmt.Errorf("invalid value for %s: %w", envSkip, err)
		}
	}
	return nil
}

// RegisterFlags binds the configuration to command line flags, so that a TestMain can do:
//
//	cfg := framework.DefaultConfig()
//	cfg.RegisterFlags(flag.CommandLine)
//	flag.Parse()
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.HTTP1, "testkit.http1", c.HTTP1, "allow HTTP/1 connections to ephemeral servers")
	fs.BoolVar(&c.HTTP2, "testkit.http2", c.HTTP2, "allow HTTP/2 connections to ephemeral servers")
	fs.DurationVar(&c.GracePeriod, "testkit.grace-period", c.GracePeriod,
		"how long to wait for open connections when a test ends")
	fs.BoolVar(&c.Debug, "testkit.debug", c.Debug, "enable debug logging")
	fs.BoolVar(&c.Verbose, "testkit.verbose", c.Verbose, "print lifecycle output for all tests")
	fs.Var(&c.Skip, "testkit.skip", "regex pattern(s) to select harnessed tests not to run")
}
