// Package simulation implements the simulation driver (spec §4.6): it
// builds the virtual swarm, schedules peer joins (all-at-once or a
// ramped flash crowd), runs one concurrent request loop per live peer,
// applies churn, and hands everything recorded off to the metrics
// aggregator. It also hosts the baseline variants (spec §4.8) that
// share the same driver and metrics shape.
package simulation

import (
	"fmt"
	"time"

	"github.com/swarmsim/swarmsim/internal/swarm"
)

// ChurnMode selects how churn events affect the swarm (spec §4.6).
type ChurnMode string

const (
	ChurnLeaving ChurnMode = "leaving"
	ChurnJoining ChurnMode = "joining"
	ChurnMixed   ChurnMode = "mixed"
)

// Variant selects which request-resolution strategy the driver runs
// (spec §4.8). VariantP2P is the full swarm model; the others share the
// driver's peer/join/churn machinery but resolve requests differently.
type Variant string

const (
	VariantP2P    Variant = "p2p"
	VariantOrigin Variant = "origin" // spec §4.8 origin-only baseline
	VariantCDN    Variant = "cdn"
	VariantDHT    Variant = "dht"
)

// DeviceHeterogeneity is the per-peer device parameter spread the driver
// draws from when constructing peers (spec §4.6), defaults 10-250ms
// latency and 10-100Mbps bandwidth.
type DeviceHeterogeneity struct {
	LatencyMinMs   float64
	LatencyMaxMs   float64
	BandwidthMinMbps float64
	BandwidthMaxMbps float64
}

// DefaultDeviceHeterogeneity matches spec §4.6's stated defaults.
func DefaultDeviceHeterogeneity() DeviceHeterogeneity {
	return DeviceHeterogeneity{
		LatencyMinMs:     10,
		LatencyMaxMs:     250,
		BandwidthMinMbps: 10,
		BandwidthMaxMbps: 100,
	}
}

// Config is the simulation driver's input (spec §4.6 SimulationConfig).
type Config struct {
	NumPeers    int
	TargetFile  string // opaque resource identifier; irrelevant to the math
	DurationSec float64

	// RequestProbability is the per-second Bernoulli trial probability.
	// RequestInterval is a deprecated alias: when RequestProbability is
	// zero and RequestInterval is positive, p = min(1, 1000/interval) is
	// derived from it (spec §4.6).
	RequestProbability float64
	RequestInterval    float64

	ChurnRate float64
	ChurnMode ChurnMode

	FlashCrowd               bool
	JoinRate                 float64
	AnchorSignalingLatencyMs float64

	DeviceHeterogeneity DeviceHeterogeneity
	FileSizeBytes       int

	// BaselineMode, if true and Variant is unset, selects VariantOrigin
	// (spec §4.6 "if true, run origin-only variant instead"). Variant
	// lets a caller pick the CDN or DHT baseline directly (spec §4.8).
	BaselineMode bool
	Variant      Variant

	// CDNEdges is the CDN baseline's edge count (spec §4.8, default 3).
	CDNEdges int

	Seed int64

	CheckInterval      time.Duration // default 100ms (spec §4.6)
	RoleUpdateInterval time.Duration // default swarm.DefaultRoleUpdateInterval
	PromoteThreshold   float64
	ReputationWeights  swarm.ReputationWeights
	RequestTimeout     time.Duration // default swarm.DefaultInMemoryRequestTimeout

	OriginMaxConcurrentFlashCrowd int64
	OriginMaxConcurrentSteady     int64
}

// effectiveRequestProbability resolves the RequestProbability/RequestInterval
// alias (spec §4.6).
func (c Config) effectiveRequestProbability() float64 {
	if c.RequestProbability > 0 {
		return c.RequestProbability
	}
	if c.RequestInterval > 0 {
		p := 1000.0 / c.RequestInterval
		if p > 1 {
			p = 1
		}
		return p
	}
	return 0
}

// withDefaults fills zero-valued fields with spec-mandated defaults
// without mutating the caller's Config.
func (c Config) withDefaults() Config {
	if c.DeviceHeterogeneity == (DeviceHeterogeneity{}) {
		c.DeviceHeterogeneity = DefaultDeviceHeterogeneity()
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = 100 * time.Millisecond
	}
	if c.RoleUpdateInterval == 0 {
		c.RoleUpdateInterval = swarm.DefaultRoleUpdateInterval
	}
	if c.PromoteThreshold == 0 {
		c.PromoteThreshold = 10
	}
	if c.ReputationWeights == (swarm.ReputationWeights{}) {
		c.ReputationWeights = swarm.BrowserWeights()
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = swarm.DefaultInMemoryRequestTimeout
	}
	if c.CDNEdges == 0 {
		c.CDNEdges = 3
	}
	if c.OriginMaxConcurrentFlashCrowd == 0 {
		c.OriginMaxConcurrentFlashCrowd = 20
	}
	if c.OriginMaxConcurrentSteady == 0 {
		c.OriginMaxConcurrentSteady = 40
	}
	if c.Variant == "" {
		if c.BaselineMode {
			c.Variant = VariantOrigin
		} else {
			c.Variant = VariantP2P
		}
	}
	if c.ChurnMode == "" {
		c.ChurnMode = ChurnLeaving
	}
	return c
}

// Validate reports whether c (after defaults are applied) is a runnable
// configuration, without starting a simulation. cmd/simulate's `config
// validate` subcommand uses this to check a config file in isolation.
func (c Config) Validate() error {
	return c.withDefaults().validate()
}

// validate implements spec §7's ConfigInvalid taxonomy: fatal before a
// simulation starts.
func (c Config) validate() error {
	if c.NumPeers < 0 {
		return fmt.Errorf("%w: numPeers must be >= 0, got %d", swarm.ErrConfigInvalid, c.NumPeers)
	}
	if c.DurationSec < 0 {
		return fmt.Errorf("%w: durationSec must be >= 0, got %v", swarm.ErrConfigInvalid, c.DurationSec)
	}
	if c.RequestProbability < 0 || c.RequestProbability > 1 {
		return fmt.Errorf("%w: requestProbability must be in [0,1], got %v", swarm.ErrConfigInvalid, c.RequestProbability)
	}
	if p := c.effectiveRequestProbability(); p < 0 || p > 1 {
		return fmt.Errorf("%w: requestProbability must be in [0,1], got %v", swarm.ErrConfigInvalid, p)
	}
	if c.ChurnRate < 0 || c.ChurnRate > 1 {
		return fmt.Errorf("%w: churnRate must be in [0,1], got %v", swarm.ErrConfigInvalid, c.ChurnRate)
	}
	if c.FlashCrowd && c.JoinRate <= 0 {
		return fmt.Errorf("%w: joinRate must be > 0 when flashCrowd is set", swarm.ErrConfigInvalid)
	}
	return nil
}
