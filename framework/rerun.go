package framework

import (
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
)

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// RerunCommand returns a go test command line that runs only the given test.
func RerunCommand(id TestID) string {
	patterns := make([]string, 0, len(id.Path))
	for _, name := range id.Path {
		patterns = append(patterns, "^"+regexp.QuoteMeta(name)+"$")
	}
	var cmd commandBuilder
	cmd.add("go", "test", "-run", strings.Join(patterns, "/"))
	return cmd.String()
}
