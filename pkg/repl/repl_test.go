package repl_test

import (
	"strings"
	"testing"

	"elemring/pkg/repl"
)

func TestAddCommand(t *testing.T) {
	r := repl.NewRepl()
	r.AddCommand("stats", func(string, *repl.REPLConfig) error { return nil }, "Prints state. usage: stats")

	if _, ok := r.Commands["stats"]; !ok {
		t.Fatalf("expect stats to be registered")
	}
	if !strings.Contains(r.HelpString(), "stats") {
		t.Fatalf("expect help to mention stats but got %q", r.HelpString())
	}
}

func TestAddCommand_RejectsMetaTriggers(t *testing.T) {
	r := repl.NewRepl()
	r.AddCommand("", func(string, *repl.REPLConfig) error { return nil }, "empty")
	r.AddCommand(".quit", func(string, *repl.REPLConfig) error { return nil }, "dot")

	if len(r.Commands) != 0 {
		t.Fatalf("expect no commands registered but got %d", len(r.Commands))
	}
}
