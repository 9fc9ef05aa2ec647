package simulation

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fastDefaults scales spec §8's scenario timings down to something a unit
// test suite can run quickly while keeping every ratio and invariant the
// scenario actually checks.
func fastDefaults(cfg Config) Config {
	cfg.CheckInterval = 5 * time.Millisecond
	if cfg.DeviceHeterogeneity == (DeviceHeterogeneity{}) {
		cfg.DeviceHeterogeneity = DeviceHeterogeneity{LatencyMinMs: 1, LatencyMaxMs: 5, BandwidthMinMbps: 50, BandwidthMaxMbps: 50}
	}
	return cfg
}

// TestSmallSteadySwarm mirrors spec §8 scenario 1.
func TestSmallSteadySwarm(t *testing.T) {
	cfg := fastDefaults(Config{
		NumPeers:           2,
		DurationSec:        0.3,
		RequestProbability: 0.9,
		Seed:               1,
	})

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.TotalRequests != results.PeerRequests+results.OriginRequests+results.LocalCacheHits {
		t.Fatalf("accounting identity violated: %+v", results)
	}
	if results.CacheHitRatio < 0 || results.CacheHitRatio > 100 {
		t.Fatalf("cacheHitRatio out of bounds: %v", results.CacheHitRatio)
	}
}

// TestFlashCrowd mirrors spec §8 scenario 2, scaled down: every configured
// peer joins (paced by joinRate) and anchorNodes is reported. It does not
// check fileTransferEvents.
func TestFlashCrowd(t *testing.T) {
	cfg := fastDefaults(Config{
		NumPeers:                 10,
		DurationSec:              1.5,
		RequestProbability:       1,
		FlashCrowd:               true,
		JoinRate:                 20,
		AnchorSignalingLatencyMs: 5,
		Seed:                     2,
	})

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results.PeerJoinEvents) != cfg.NumPeers {
		t.Fatalf("peerJoinEvents length = %d, want %d", len(results.PeerJoinEvents), cfg.NumPeers)
	}
	if len(results.AnchorNodes) < 0 {
		t.Fatalf("anchorNodes must be non-negative length")
	}
}

// TestChurnResilience mirrors spec §8 scenario 3: no crash, and
// recoverySpeed, when present after churn events and requests, is >= 0.
func TestChurnResilience(t *testing.T) {
	cfg := fastDefaults(Config{
		NumPeers:           12,
		DurationSec:        1.5,
		RequestProbability: 0.8,
		ChurnRate:          0.05,
		Seed:               3,
	})

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.ChurnEvents != nil && *results.ChurnEvents > 0 && results.TotalRequests > 0 {
		if results.RecoverySpeed != nil && *results.RecoverySpeed < 0 {
			t.Fatalf("recoverySpeed must be >= 0, got %v", *results.RecoverySpeed)
		}
	}
}

// TestOriginOnlyBaseline mirrors spec §8 scenario 4.
func TestOriginOnlyBaseline(t *testing.T) {
	cfg := fastDefaults(Config{
		NumPeers:           2,
		DurationSec:        0.3,
		RequestProbability: 0.9,
		BaselineMode:       true,
		Seed:               1,
	})

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.PeerRequests != 0 {
		t.Fatalf("peerRequests = %d, want 0", results.PeerRequests)
	}
	if results.CacheHitRatio != 0 {
		t.Fatalf("cacheHitRatio = %v, want 0", results.CacheHitRatio)
	}
	if results.OriginRequests != results.TotalRequests {
		t.Fatalf("originRequests(%d) != totalRequests(%d)", results.OriginRequests, results.TotalRequests)
	}
}

// TestFairness mirrors spec §8 scenario 5's bound check.
func TestFairness(t *testing.T) {
	cfg := fastDefaults(Config{
		NumPeers:           20,
		DurationSec:        1.5,
		RequestProbability: 0.6,
		Seed:               5,
	})
	cfg.DeviceHeterogeneity = DeviceHeterogeneity{LatencyMinMs: 5, LatencyMaxMs: 5, BandwidthMinMbps: 50, BandwidthMaxMbps: 50}

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.JainFairnessIndex < 0 || results.JainFairnessIndex > 1 {
		t.Fatalf("jainFairnessIndex out of bounds: %v", results.JainFairnessIndex)
	}
}

// TestBandwidthSavedEqualsCacheHitRatio mirrors spec §8 scenario 6.
func TestBandwidthSavedEqualsCacheHitRatio(t *testing.T) {
	cfg := fastDefaults(Config{
		NumPeers:           8,
		DurationSec:        0.5,
		RequestProbability: 0.7,
		Seed:               6,
	})

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.BandwidthSaved != results.CacheHitRatio {
		t.Fatalf("bandwidthSaved(%v) != cacheHitRatio(%v)", results.BandwidthSaved, results.CacheHitRatio)
	}
}

// TestBoundaryNumPeersOne mirrors spec §8's numPeers=1 boundary.
func TestBoundaryNumPeersOne(t *testing.T) {
	cfg := fastDefaults(Config{NumPeers: 1, DurationSec: 0.3, RequestProbability: 0.9, Seed: 7})

	results, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.PeerRequests != 0 {
		t.Fatalf("peerRequests = %d, want 0 with a single peer", results.PeerRequests)
	}
	if len(results.FileTransferEvents) != 0 {
		t.Fatalf("fileTransferEvents must be empty with a single peer")
	}
}

// TestBoundaryDurationZero mirrors spec §8's duration=0 boundary.
func TestBoundaryDurationZero(t *testing.T) {
	cfg := fastDefaults(Config{NumPeers: 5, DurationSec: 0, Seed: 8})

	start := time.Now()
	results, err := Run(context.Background(), cfg)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("duration=0 took too long: %s", elapsed)
	}
	if results.TotalRequests != 0 {
		t.Fatalf("totalRequests = %d, want 0 for duration=0", results.TotalRequests)
	}
}

// TestBoundaryChurnRateOne mirrors spec §8's churnRate=1 boundary: peers
// leave on their first tick and the simulation terminates without a crash.
func TestBoundaryChurnRateOne(t *testing.T) {
	cfg := fastDefaults(Config{
		NumPeers:    5,
		DurationSec: 2,
		ChurnRate:   1,
		Seed:        9,
	})

	done := make(chan struct{})
	var results Results
	var err error
	go func() {
		results, err = Run(context.Background(), cfg)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("simulation with churnRate=1 did not terminate")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_ = results
}

func TestConfigValidateRejectsNegativeNumPeers(t *testing.T) {
	cfg := Config{NumPeers: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for negative numPeers")
	}
}

func TestBaselineVariantsShareResultsShape(t *testing.T) {
	base := fastDefaults(Config{NumPeers: 6, DurationSec: 0.4, RequestProbability: 0.8, Seed: 11})

	for _, variant := range []Variant{VariantOrigin, VariantCDN, VariantDHT} {
		cfg := base
		cfg.Variant = variant
		results, err := Run(context.Background(), cfg)
		if err != nil {
			t.Fatalf("variant %s: Run: %v", variant, err)
		}
		if results.PeersSimulated != cfg.NumPeers {
			t.Fatalf("variant %s: peersSimulated = %d, want %d", variant, results.PeersSimulated, cfg.NumPeers)
		}
	}
}
