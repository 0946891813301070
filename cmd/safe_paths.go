package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
	"github.com/khanhnv2901/secheckup/internal/shared/security"
)

// validateCheckupID ensures checkup identifiers can't be used for path traversal.
// IDs are stored inside filenames, so only canonical UUIDs are accepted.
func validateCheckupID(id string) error {
	switch id {
	case "":
		return errors.New("checkup ID is required")
	case ".", "..":
		return fmt.Errorf("checkup ID %q is reserved", id)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("checkup ID %q must not contain path separators", id)
	}
	if !security.IsCheckupID(id) {
		return fmt.Errorf("checkup ID %q is not a valid UUID", id)
	}
	return nil
}

// writeOutputFile writes a rendered report, creating parent directories.
func writeOutputFile(path string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("output path is required")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("output path %s is a directory", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, consts.DefaultFilePerm); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
