package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/swarmsim/swarmsim/internal/simulation"
	"github.com/swarmsim/swarmsim/internal/swarm"
)

// checkConfigFilePermissions rejects overly permissive config file
// modes with an error, matching the teacher's own loader (config files may embed
// reproducible seeds an operator wants kept private to a run).
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadSimulationConfig loads a simulation.Config from a YAML file
// (spec §4.6 SimulationConfig). Zero-valued fields in the file are left
// zero; simulation.Run applies its own defaults at run time.
func LoadSimulationConfig(path string) (simulation.Config, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return simulation.Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return simulation.Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw FileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return simulation.Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	version := raw.Version
	if version == 0 {
		version = 1
	}
	if version > CurrentConfigVersion {
		return simulation.Config{}, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade swarmsim", ErrConfigVersionTooNew, version, CurrentConfigVersion)
	}

	cfg := simulation.Config{
		NumPeers:                 raw.NumPeers,
		TargetFile:               raw.TargetFile,
		DurationSec:              raw.DurationSec,
		RequestProbability:       raw.RequestProbability,
		RequestInterval:          raw.RequestInterval,
		ChurnRate:                raw.ChurnRate,
		ChurnMode:                simulation.ChurnMode(raw.ChurnMode),
		FlashCrowd:               raw.FlashCrowd,
		JoinRate:                 raw.JoinRate,
		AnchorSignalingLatencyMs: raw.AnchorSignalingLatencyMs,
		FileSizeBytes:            raw.FileSizeBytes,
		BaselineMode:             raw.BaselineMode,
		Variant:                  simulation.Variant(raw.Variant),
		CDNEdges:                 raw.CDNEdges,
		Seed:                     raw.Seed,
		PromoteThreshold:         raw.PromoteThreshold,

		OriginMaxConcurrentFlashCrowd: raw.OriginMaxConcurrentFlashCrowd,
		OriginMaxConcurrentSteady:     raw.OriginMaxConcurrentSteady,
	}

	if raw.DeviceHeterogeneity != nil {
		cfg.DeviceHeterogeneity = simulation.DeviceHeterogeneity{
			LatencyMinMs:     raw.DeviceHeterogeneity.LatencyMinMs,
			LatencyMaxMs:     raw.DeviceHeterogeneity.LatencyMaxMs,
			BandwidthMinMbps: raw.DeviceHeterogeneity.BandwidthMinMbps,
			BandwidthMaxMbps: raw.DeviceHeterogeneity.BandwidthMaxMbps,
		}
	}

	switch strings.ToLower(raw.ReputationProfile) {
	case "server":
		cfg.ReputationWeights = swarm.ServerWeights()
	case "", "browser":
		cfg.ReputationWeights = swarm.BrowserWeights()
	default:
		return simulation.Config{}, fmt.Errorf("unknown reputation_profile %q: want \"browser\" or \"server\"", raw.ReputationProfile)
	}

	if raw.CheckInterval != "" {
		d, err := time.ParseDuration(raw.CheckInterval)
		if err != nil {
			return simulation.Config{}, fmt.Errorf("invalid check_interval: %w", err)
		}
		cfg.CheckInterval = d
	}
	if raw.RoleUpdateInterval != "" {
		d, err := time.ParseDuration(raw.RoleUpdateInterval)
		if err != nil {
			return simulation.Config{}, fmt.Errorf("invalid role_update_interval: %w", err)
		}
		cfg.RoleUpdateInterval = d
	}
	if raw.RequestTimeout != "" {
		d, err := time.ParseDuration(raw.RequestTimeout)
		if err != nil {
			return simulation.Config{}, fmt.Errorf("invalid request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

// FindConfigFile searches for a swarmsim config file in standard
// locations. Search order: explicitPath (if given), ./swarmsim.yaml,
// ~/.config/swarmsim/config.yaml, /etc/swarmsim/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{"swarmsim.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "swarmsim", "config.yaml"))
	}
	searchPaths = append(searchPaths, filepath.Join("/etc", "swarmsim", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nUse --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}
