package application

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	checkupapp "github.com/khanhnv2901/secheckup/internal/application/checkup"
	"github.com/khanhnv2901/secheckup/internal/checker"
)

func TestNewContainer(t *testing.T) {
	dir := t.TempDir()
	c, err := NewContainer(Options{
		ResultsDir:     dir,
		Runner:         &checker.Runner{Concurrency: 4},
		SimulatedDelay: time.Millisecond,
		Logger:         zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	run, err := c.Orchestrator.Run(context.Background(), checkupapp.Request{Mode: "simulated"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	saved, err := c.CheckupRepo.FindByID(context.Background(), run.ID())
	if err != nil {
		t.Fatalf("Expected checkup to be saved: %v", err)
	}
	if saved.Summary().Total != len(checker.ProbeOrder) {
		t.Errorf("Expected %d verdicts, got %d", len(checker.ProbeOrder), saved.Summary().Total)
	}

	recs, err := c.Telemetry.Recent(10)
	if err != nil || len(recs) != 1 {
		t.Errorf("Expected one telemetry record, got %d (%v)", len(recs), err)
	}
}
