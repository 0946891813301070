package cmd

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	checkupapp "github.com/khanhnv2901/secheckup/internal/application/checkup"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

func testAppContext(t *testing.T) *AppContext {
	t.Helper()
	return &AppContext{
		Logger:     zaptest.NewLogger(t),
		DataDir:    t.TempDir(),
		ResultsDir: t.TempDir(),
		Config:     newCLIConfig(),
	}
}

func TestNewServicesWith_ServeRestrictions(t *testing.T) {
	services, err := testAppContext(t).newServicesWith(serviceOptions{PublicTargetsOnly: true, NoBrowser: true})
	if err != nil {
		t.Fatalf("newServicesWith() failed: %v", err)
	}
	orch := services.Orchestrator

	if _, err := orch.Prepare(checkupapp.Request{Target: "http://127.0.0.1:6379"}); !errors.Is(err, sharedErrors.ErrPrivateTarget) {
		t.Errorf("Expected ErrPrivateTarget, got %v", err)
	}
	if _, err := orch.Prepare(checkupapp.Request{Browser: true}); !errors.Is(err, sharedErrors.ErrBrowserDisabled) {
		t.Errorf("Expected ErrBrowserDisabled, got %v", err)
	}
}

func TestNewServices_LocalCommandsAreUnrestricted(t *testing.T) {
	services, err := testAppContext(t).newServices(true)
	if err != nil {
		t.Fatalf("newServices() failed: %v", err)
	}
	orch := services.Orchestrator

	if _, err := orch.Prepare(checkupapp.Request{Target: "http://127.0.0.1:6379"}); err != nil {
		t.Errorf("Expected private target to be accepted, got %v", err)
	}
	if _, err := orch.Prepare(checkupapp.Request{Browser: true}); err != nil {
		t.Errorf("Expected browser collection to be available, got %v", err)
	}
}
