package simulation

import "math/rand"

// device is one peer's drawn hardware/session parameters (spec §4.6
// step 1).
type device struct {
	latencyMs     float64
	bandwidthMbps float64
	uptimeBudget  float64 // seconds; natural session length before a voluntary leave
}

// deviceFor deterministically derives peer index i's device parameters
// from seed, following spec §4.6's formula: latency ramps linearly
// across the population with a small uniform jitter (clamped to a 10ms
// floor), bandwidth is uniform across the configured range, and
// uptimeBudget is uniform in [30,300] seconds. Each index gets its own
// rand.Source so churn-spawned replacement peers (whose index runs past
// NumPeers) can draw a device without sharing mutable RNG state with
// concurrently running peer loops.
func deviceFor(cfg Config, seed int64, i int) device {
	rng := rand.New(rand.NewSource(seed*1000003 + int64(i) + 1))

	h := cfg.DeviceHeterogeneity
	spread := (h.LatencyMaxMs - h.LatencyMinMs) * 0.05
	frac := 0.0
	if cfg.NumPeers > 1 {
		frac = float64(i) / float64(cfg.NumPeers)
	}
	jitter := (rng.Float64()*2 - 1) * spread
	latency := h.LatencyMinMs + frac*(h.LatencyMaxMs-h.LatencyMinMs) + jitter
	if latency < 10 {
		latency = 10
	}
	bandwidth := h.BandwidthMinMbps + rng.Float64()*(h.BandwidthMaxMbps-h.BandwidthMinMbps)
	uptimeBudget := 30 + rng.Float64()*270

	return device{latencyMs: latency, bandwidthMbps: bandwidth, uptimeBudget: uptimeBudget}
}

// bernoulli reports a true/false trial with probability p, guarding the
// degenerate p<=0/p>=1 cases explicitly rather than relying on float
// comparisons against rng output.
func bernoulli(rng *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}
