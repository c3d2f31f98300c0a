// Command testkit-lint checks harnessed test specifications without running any tests.
//
//	testkit-lint [-run pattern] [-e clauses] suite.yaml...
//
// Each suite file is parsed and every test's specification is printed in normalized clause
// syntax. The exit status is 1 if anything fails to parse.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/launchdarkly/go-server-testkit/framework"
	"github.com/launchdarkly/go-server-testkit/spec"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
)

func main() {
	os.Exit(run(os.Args[1:], color.Output, color.Error))
}

func run(args []string, out, errOut io.Writer) int {
	var filter framework.RegexList
	var inline stringList

	fs := flag.NewFlagSet("testkit-lint", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Var(&filter, "run", "regex pattern(s) to select tests to check")
	fs.Var(&inline, "e", "clauses to check, in addition to any files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 && len(inline) == 0 {
		fmt.Fprintln(errOut, "no suite files or -e clauses to check")
		fs.Usage()
		return 2
	}

	failures := 0
	for _, clauses := range inline {
		ts, err := spec.Parse(clauses)
		if err != nil {
			failColor.Fprintf(out, "FAIL  %q: %s\n", clauses, err)
			failures++
			continue
		}
		okColor.Fprintf(out, "ok    %s\n", ts)
	}

	for _, path := range fs.Args() {
		suite, err := spec.LoadSuiteFile(path)
		if err != nil {
			failColor.Fprintf(out, "FAIL  %s: %s\n", path, err)
			failures++
			continue
		}
		fmt.Fprintf(out, "[%s]\n", path)
		for _, name := range suite.Names() {
			if filter.IsDefined() && !filter.AnyMatch(name) {
				continue
			}
			okColor.Fprintf(out, "ok    %s: %s\n", name, suite[name])
		}
	}

	if failures > 0 {
		failColor.Fprintf(out, "%d specification(s) failed to parse\n", failures)
		return 1
	}
	return 0
}

type stringList []string

func (s *stringList) String() string {
	return fmt.Sprint([]string(*s))
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
