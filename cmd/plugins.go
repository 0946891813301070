package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/secheckup/internal/checker"
)

// probePluginDefinition is one <data dir>/plugins/*.json file.
type probePluginDefinition struct {
	checker.ExternalProbeConfig
	APIVersion int `json:"api_version"`
}

const currentPluginAPIVersion = 1

// loadProbePlugins builds an external probe for every valid definition in
// dir. Unreadable or invalid definitions are skipped with a warning, as is
// any definition reusing an id already loaded; a missing directory yields
// no probes.
func loadProbePlugins(dir string, logger *zap.Logger) ([]checker.Probe, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	probes := make([]checker.Probe, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		log := logger.With(zap.String("plugin", entry.Name()))

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn("failed to read plugin", zap.Error(err))
			continue
		}

		var def probePluginDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			log.Warn("failed to parse plugin", zap.Error(err))
			continue
		}
		if def.APIVersion == 0 {
			def.APIVersion = currentPluginAPIVersion
		}
		if def.APIVersion != currentPluginAPIVersion {
			log.Warn("unsupported plugin API version",
				zap.Int("api_version", def.APIVersion),
				zap.Int("expected", currentPluginAPIVersion),
			)
			continue
		}

		probe, err := checker.NewExternalProbe(def.ExternalProbeConfig)
		if err != nil {
			log.Warn("invalid plugin", zap.Error(err))
			continue
		}
		if first, dup := seen[probe.ID()]; dup {
			log.Warn("duplicate plugin id",
				zap.String("id", probe.ID()),
				zap.String("loaded_from", first),
			)
			continue
		}
		seen[probe.ID()] = entry.Name()
		probes = append(probes, probe)
	}

	return probes, nil
}

func describePluginDir(dataDir string) string {
	return fmt.Sprintf("plugins are loaded from %s", pluginsDir(dataDir))
}
