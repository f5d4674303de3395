package cli

import (
	"strings"
	"testing"
)

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"frobnicate"})
	if err == nil {
		t.Fatal("unknown command should fail")
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("error = %q, want unknown command", err)
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	if err := Run(nil); err != nil {
		t.Fatalf("bare invocation should print usage and succeed, got %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	for _, args := range [][]string{{"version"}, {"--version"}, {"-v"}} {
		if err := Run(args); err != nil {
			t.Fatalf("Run(%v) failed: %v", args, err)
		}
	}
}

func TestRunHelp(t *testing.T) {
	if err := Run([]string{"help"}); err != nil {
		t.Fatalf("help failed: %v", err)
	}
}
