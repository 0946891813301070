package main

import (
	"sync/atomic"
	"testing"

	"github.com/khanhnv2901/secheckup/cmd"
)

func TestMainInvokesExecute(t *testing.T) {
	var called int32
	execCmd = func() {
		atomic.AddInt32(&called, 1)
	}
	defer func() { execCmd = cmd.Execute }()

	main()

	if atomic.LoadInt32(&called) != 1 {
		t.Fatalf("expected execCmd to be invoked once, got %d", called)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := cmd.RootCommand()
	if root.Use != "secheckup" {
		t.Errorf("expected root command secheckup, got %q", root.Use)
	}
	for _, name := range []string{"run", "serve", "report", "history"} {
		found, _, err := root.Find([]string{name})
		if err != nil || found == nil || found.Name() != name {
			t.Errorf("expected %s subcommand, got %v (err=%v)", name, found, err)
		}
	}
}
