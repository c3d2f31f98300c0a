package containers

import (
	"fmt"
	"net/url"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Image describes how to start one kind of container. Each implementation is a distinct Go
// type, so that a test can look up its container by type:
//
//	framework.Container[*containers.Container[containers.Valkey]](tc)
type Image interface {
	// Request returns the testcontainers request used to start the container.
	Request() testcontainers.ContainerRequest

	// URL returns the address a client should use, given the mapped host:port endpoint.
	URL(endpoint string) string
}

const (
	defaultValkeyTag   = "8-alpine"
	defaultRedisTag    = "7-alpine"
	defaultPostgresTag = "16-alpine"

	redisReadyLog    = "Ready to accept connections"
	postgresReadyLog = "database system is ready to accept connections"
)

// Valkey is a single Valkey server.
type Valkey struct {
	Tag string
}

func (v Valkey) Request() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "valkey/valkey:" + orDefault(v.Tag, defaultValkeyTag),
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog(redisReadyLog),
	}
}

func (v Valkey) URL(endpoint string) string {
	return "redis://" + endpoint
}

// Redis is a single Redis server.
type Redis struct {
	Tag string
}

func (r Redis) Request() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "redis:" + orDefault(r.Tag, defaultRedisTag),
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog(redisReadyLog),
	}
}

func (r Redis) URL(endpoint string) string {
	return "redis://" + endpoint
}

// Postgres is a PostgreSQL server with one database. Empty fields get the defaults "test" for
// the user, password, and database.
type Postgres struct {
	Tag      string
	User     string
	Password string
	Database string
}

func (p Postgres) Request() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "postgres:" + orDefault(p.Tag, defaultPostgresTag),
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     orDefault(p.User, "test"),
			"POSTGRES_PASSWORD": orDefault(p.Password, "test"),
			"POSTGRES_DB":       orDefault(p.Database, "test"),
		},
		// Postgres logs the ready message once for the init server and once for the real one.
		WaitingFor: wait.ForLog(postgresReadyLog).WithOccurrence(2),
	}
}

func (p Postgres) URL(endpoint string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(orDefault(p.User, "test"), orDefault(p.Password, "test")),
		Host:     endpoint,
		Path:     "/" + orDefault(p.Database, "test"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Generic is any image that serves one port. It is what the generic(image, tag, port) container
// call starts.
type Generic struct {
	Repository string
	Tag        string
	// Port is the exposed port, such as "80/tcp". It defaults to "80/tcp".
	Port string
	Env  map[string]string
}

func (g Generic) Request() testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        g.Reference(),
		ExposedPorts: []string{orDefault(g.Port, "80/tcp")},
		Env:          g.Env,
		WaitingFor:   wait.ForExposedPort(),
	}
}

func (g Generic) URL(endpoint string) string {
	return "http://" + endpoint
}

// Reference returns the image reference, "repository:tag".
func (g Generic) Reference() string {
	return fmt.Sprintf("%s:%s", g.Repository, orDefault(g.Tag, "latest"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
