package simulation

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/swarmsim/swarmsim/internal/metrics"
	"github.com/swarmsim/swarmsim/internal/origin"
)

// resolution is one baseline variant's answer to "how does a request for
// the target resource get satisfied": the modeled latency, which metrics
// source it counts as, the peer ID credited with serving it (if any),
// and whether it succeeded (spec §4.8).
type resolution struct {
	latencyMs float64
	source    metrics.Source
	servedBy  string
	success   bool
}

// baselineRun drives the three non-P2P variants (spec §4.8): it reuses
// the same join pacing, per-peer request ticking and churn machinery as
// runP2P, but resolves each request through a variant-specific resolver
// instead of swarm's cache/pipeline, and never builds a transport.Room or
// swarm.Peer at all.
type baselineRun struct {
	cfg   Config
	agg   *metrics.Aggregator
	start time.Time

	deadline time.Time
	group    *errgroup.Group
	gctx     context.Context

	mu        sync.Mutex
	liveCount int
	nextIdx   int64

	resolve func(idx int, dev device, nowMs int64) resolution
	onLeave func(idx int, nowMs int64)
}

func newBaselineRun(ctx context.Context, cfg Config) *baselineRun {
	start := time.Now()
	group, gctx := errgroup.WithContext(ctx)
	return &baselineRun{
		cfg:      cfg,
		agg:      metrics.NewAggregator(),
		start:    start,
		deadline: start.Add(time.Duration(cfg.DurationSec * float64(time.Second))),
		group:    group,
		gctx:     gctx,
		nextIdx:  int64(cfg.NumPeers),
	}
}

func (r *baselineRun) nowMs() int64 { return time.Since(r.start).Milliseconds() }

// run spawns every peer loop (paced by JoinRate when FlashCrowd is set,
// all at once otherwise — identical scheduling to runP2P's) and blocks
// until they've all finished.
func (r *baselineRun) run() error {
	if r.cfg.FlashCrowd {
		r.group.Go(func() error {
			limiter := rate.NewLimiter(rate.Limit(r.cfg.JoinRate), 1)
			for i := 0; i < r.cfg.NumPeers; i++ {
				if !time.Now().Before(r.deadline) {
					break
				}
				if err := limiter.Wait(r.gctx); err != nil {
					return nil
				}
				i := i
				r.mu.Lock()
				r.liveCount++
				r.mu.Unlock()
				r.group.Go(func() error { return r.peerLoop(i) })
			}
			return nil
		})
	} else {
		for i := 0; i < r.cfg.NumPeers; i++ {
			i := i
			r.mu.Lock()
			r.liveCount++
			r.mu.Unlock()
			r.group.Go(func() error { return r.peerLoop(i) })
		}
	}
	return r.group.Wait()
}

// peerLoop mirrors p2pRun.peerLoop's tick structure (request trial,
// natural-expiry check, churn trial) but has no role/connection
// maintenance or auto-fetch — baselines have no anchor/transient concept
// (spec §4.8 only names request resolution, not reputation).
func (r *baselineRun) peerLoop(idx int) error {
	dev := deviceFor(r.cfg, r.cfg.Seed, idx)
	joinNow := r.nowMs()
	r.agg.RecordJoin(metrics.PeerJoinEvent{PeerID: peerName(idx), TimestampMs: joinNow})

	if !time.Now().Before(r.deadline) {
		return nil
	}

	rng := rand.New(rand.NewSource(r.cfg.Seed*1299709 + int64(idx) + 31))
	pReq := r.cfg.effectiveRequestProbability() * float64(r.cfg.CheckInterval.Milliseconds()) / 1000.0

	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()
	joinedAt := time.Now()

	for {
		select {
		case <-r.gctx.Done():
			return nil
		case now := <-ticker.C:
			if !now.Before(r.deadline) {
				return nil
			}
			nm := r.nowMs()

			if bernoulli(rng, pReq) {
				res := r.resolve(idx, dev, nm)
				r.agg.RecordRequest(metrics.RequestRecord{
					TimestampMs:       nm,
					LatencyMs:         res.latencyMs,
					Source:            res.source,
					PeerID:            peerName(idx),
					PeerBandwidthMbps: dev.bandwidthMbps,
					PeerBandwidthTier: metrics.Tier(dev.bandwidthMbps),
					Successful:        res.success,
				})
				if res.success && res.servedBy != "" {
					r.agg.RecordUploadServed(res.servedBy)
				}
			}

			if now.Sub(joinedAt).Seconds() >= dev.uptimeBudget {
				r.leave(idx, nm)
				return nil
			}

			if r.cfg.ChurnRate > 0 && bernoulli(rng, r.cfg.ChurnRate) {
				switch r.cfg.ChurnMode {
				case ChurnLeaving:
					r.leave(idx, nm)
					return nil
				case ChurnMixed:
					r.leave(idx, nm)
					r.maybeSpawnReplacement()
					return nil
				case ChurnJoining:
					r.maybeSpawnReplacement()
				}
			}
		}
	}
}

func (r *baselineRun) leave(idx int, nowMs int64) {
	r.mu.Lock()
	r.liveCount--
	r.mu.Unlock()
	if r.onLeave != nil {
		r.onLeave(idx, nowMs)
	}
}

func (r *baselineRun) maybeSpawnReplacement() {
	r.mu.Lock()
	if r.liveCount >= r.cfg.NumPeers {
		r.mu.Unlock()
		return
	}
	r.liveCount++
	idx := int(r.nextIdx)
	r.nextIdx++
	r.mu.Unlock()

	r.group.Go(func() error { return r.peerLoop(idx) })
}

func (r *baselineRun) finish() Results {
	requests := r.agg.Requests()
	input := propagationInputZero(r.cfg.NumPeers, len(requests))
	summary := r.agg.Compute(input)
	return buildResults(summary, r.agg.Joins(), r.agg.Transfers(), nil, requests,
		r.cfg.NumPeers, r.cfg.DurationSec, 0, nil)
}

func peerName(idx int) string { return "baseline-peer-" + strconv.Itoa(idx) }

// propagationInputZero builds a PropagationInput with no origin-fetch
// milestone recorded. Propagation milestones are a P2P-swarm-specific
// concept (spec §4.7 "from first peer→peer transfer"); baseline variants
// report the zero-value PropagationMetrics, matching the shared
// SimulationResults shape (spec §4.8 "all variants return the same
// SimulationResults shape") without fabricating a P2P milestone that
// never occurs.
func propagationInputZero(totalPeers, originRequestsExpected int) metrics.PropagationInput {
	return metrics.PropagationInput{TotalPeers: totalPeers, OriginRequestsExpected: originRequestsExpected}
}

// runOriginOnly implements spec §4.8's origin-only baseline: every
// request is routed straight to the origin model, with no caching layer
// of any kind (spec §8 scenario 4: peerRequests==0, cacheHitRatio==0,
// originRequests==totalRequests).
func runOriginOnly(ctx context.Context, cfg Config) (Results, error) {
	r := newBaselineRun(ctx, cfg)
	model := origin.New(maxConcurrentFor(cfg), []byte{}, "application/octet-stream")

	r.resolve = func(idx int, dev device, nowMs int64) resolution {
		result, err := model.Request(r.gctx)
		return resolution{
			latencyMs: result.LatencyMs + dev.latencyMs,
			source:    metrics.SourceOrigin,
			success:   err == nil && result.Success,
		}
	}

	if err := r.run(); err != nil {
		return Results{}, err
	}
	return r.finish(), nil
}

// runCDN implements spec §4.8's CDN baseline: cfg.CDNEdges edge caches,
// peers assigned round-robin by index, an edge miss fetches from origin
// at 1.5x latency and populates the edge so later requests at that edge
// are hits.
func runCDN(ctx context.Context, cfg Config) (Results, error) {
	r := newBaselineRun(ctx, cfg)
	model := origin.New(maxConcurrentFor(cfg), []byte{}, "application/octet-stream")

	const cdnOriginLatencyMultiplier = 1.5
	const edgeHitLatencyMs = 5.0

	var mu sync.Mutex
	edgeHasResource := make([]bool, cfg.CDNEdges)

	r.resolve = func(idx int, dev device, nowMs int64) resolution {
		edge := idx % cfg.CDNEdges

		mu.Lock()
		hit := edgeHasResource[edge]
		mu.Unlock()

		if hit {
			return resolution{latencyMs: edgeHitLatencyMs + dev.latencyMs, source: metrics.SourcePeerCache, success: true}
		}

		result, err := model.Request(r.gctx)
		if err != nil || !result.Success {
			return resolution{latencyMs: result.LatencyMs*cdnOriginLatencyMultiplier + dev.latencyMs, source: metrics.SourceOrigin, success: false}
		}

		mu.Lock()
		edgeHasResource[edge] = true
		mu.Unlock()

		return resolution{latencyMs: result.LatencyMs*cdnOriginLatencyMultiplier + dev.latencyMs, source: metrics.SourceOrigin, success: true}
	}

	if err := r.run(); err != nil {
		return Results{}, err
	}
	return r.finish(), nil
}

// runDHT implements spec §4.8's DHT baseline: a single consistent-hash
// owner serves every request at a hop-cost latency; on the owner's
// departure the resource rehashes to a new owner at a one-time
// rehashCost penalty; every requester caches locally after a successful
// fetch, so it never pays lookup cost again.
func runDHT(ctx context.Context, cfg Config) (Results, error) {
	r := newBaselineRun(ctx, cfg)

	const dhtRehashCostMs = 50.0
	avgHops := math.Max(1, math.Log2(math.Max(2, float64(cfg.NumPeers))))

	rng := rand.New(rand.NewSource(cfg.Seed * 7))
	var mu sync.Mutex
	ownerIdx := -1
	if cfg.NumPeers > 0 {
		ownerIdx = rng.Intn(cfg.NumPeers)
	}
	pendingRehash := false
	localCache := make(map[int]bool)

	r.onLeave = func(idx int, nowMs int64) {
		mu.Lock()
		defer mu.Unlock()
		if idx == ownerIdx {
			pendingRehash = true
		}
	}

	r.resolve = func(idx int, dev device, nowMs int64) resolution {
		mu.Lock()
		defer mu.Unlock()

		if localCache[idx] {
			return resolution{latencyMs: 1, source: metrics.SourceLocalCache, success: true}
		}

		rehashPenalty := 0.0
		if pendingRehash {
			if cfg.NumPeers > 0 {
				ownerIdx = rng.Intn(cfg.NumPeers)
			}
			pendingRehash = false
			rehashPenalty = dhtRehashCostMs
		}
		owner := ownerIdx

		if owner == idx {
			// the requester is itself the resource's owner: already local.
			localCache[idx] = true
			return resolution{latencyMs: 1, source: metrics.SourceLocalCache, success: true}
		}

		lookupCost := avgHops*0.3*dev.latencyMs + rehashPenalty
		localCache[idx] = true
		return resolution{latencyMs: lookupCost, source: metrics.SourcePeerCache, servedBy: peerName(owner), success: owner >= 0}
	}

	if err := r.run(); err != nil {
		return Results{}, err
	}
	return r.finish(), nil
}

func maxConcurrentFor(cfg Config) int64 {
	if cfg.FlashCrowd {
		return int64(cfg.OriginMaxConcurrentFlashCrowd)
	}
	return int64(cfg.OriginMaxConcurrentSteady)
}
