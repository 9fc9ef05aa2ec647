// Package config loads SimulationConfig (internal/simulation) from a
// versioned YAML file, following the teacher's internal/config/loader.go
// shape: a raw struct for string-typed durations, converted into the
// typed config the driver actually consumes.
package config

// CurrentConfigVersion is the latest configuration schema version. Bump
// this when adding fields that require migration.
const CurrentConfigVersion = 1

// FileConfig is the on-disk shape of a simulation config file (spec §4.6
// SimulationConfig, plus the version envelope every config file in this
// repo's family carries).
type FileConfig struct {
	Version int `yaml:"version,omitempty"`

	NumPeers    int     `yaml:"num_peers"`
	TargetFile  string  `yaml:"target_file,omitempty"`
	DurationSec float64 `yaml:"duration_sec"`

	RequestProbability float64 `yaml:"request_probability,omitempty"`
	RequestInterval    float64 `yaml:"request_interval,omitempty"`

	ChurnRate float64 `yaml:"churn_rate,omitempty"`
	ChurnMode string  `yaml:"churn_mode,omitempty"`

	FlashCrowd               bool    `yaml:"flash_crowd,omitempty"`
	JoinRate                 float64 `yaml:"join_rate,omitempty"`
	AnchorSignalingLatencyMs float64 `yaml:"anchor_signaling_latency_ms,omitempty"`

	DeviceHeterogeneity *DeviceHeterogeneityConfig `yaml:"device_heterogeneity,omitempty"`
	FileSizeBytes       int                        `yaml:"file_size_bytes,omitempty"`

	BaselineMode bool   `yaml:"baseline_mode,omitempty"`
	Variant      string `yaml:"variant,omitempty"`
	CDNEdges     int    `yaml:"cdn_edges,omitempty"`

	Seed int64 `yaml:"seed,omitempty"`

	CheckInterval      string `yaml:"check_interval,omitempty"`
	RoleUpdateInterval string `yaml:"role_update_interval,omitempty"`
	PromoteThreshold   float64 `yaml:"promote_threshold,omitempty"`
	// ReputationProfile selects the weight set (spec §4.2): "browser"
	// (default) or "server".
	ReputationProfile string `yaml:"reputation_profile,omitempty"`
	RequestTimeout    string  `yaml:"request_timeout,omitempty"`

	OriginMaxConcurrentFlashCrowd int64 `yaml:"origin_max_concurrent_flash_crowd,omitempty"`
	OriginMaxConcurrentSteady     int64 `yaml:"origin_max_concurrent_steady,omitempty"`
}

// DeviceHeterogeneityConfig mirrors simulation.DeviceHeterogeneity for
// YAML purposes.
type DeviceHeterogeneityConfig struct {
	LatencyMinMs     float64 `yaml:"latency_min_ms"`
	LatencyMaxMs     float64 `yaml:"latency_max_ms"`
	BandwidthMinMbps float64 `yaml:"bandwidth_min_mbps"`
	BandwidthMaxMbps float64 `yaml:"bandwidth_max_mbps"`
}
