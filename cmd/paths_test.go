package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestGetDataDirOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv(dataDirEnvVar, dir)

	got, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}
	if got != dir {
		t.Errorf("Expected %s, got %s", dir, got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Expected data directory to be created: %v", err)
	}
}

func TestGetDataDirXDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG layout only applies on Linux/Unix")
	}
	xdg := t.TempDir()
	t.Setenv(dataDirEnvVar, "")
	t.Setenv("XDG_DATA_HOME", xdg)

	got, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}
	if got != filepath.Join(xdg, appDirName) {
		t.Errorf("Expected %s, got %s", filepath.Join(xdg, appDirName), got)
	}
}

func TestPluginsDir(t *testing.T) {
	if got := pluginsDir("/data"); got != filepath.Join("/data", "plugins") {
		t.Errorf("unexpected plugins dir: %s", got)
	}
}
