package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/swarmsim/swarmsim/internal/metrics"
	"github.com/swarmsim/swarmsim/internal/origin"
	"github.com/swarmsim/swarmsim/internal/swarm"
	"github.com/swarmsim/swarmsim/internal/transport"
	"github.com/swarmsim/swarmsim/pkg/simhash"
)

// Run executes a simulation per spec §4.6 and returns its results, or a
// wrapped swarm.ErrConfigInvalid if the configuration is malformed
// before anything starts running (spec §7).
func Run(ctx context.Context, cfg Config) (Results, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Results{}, err
	}

	switch cfg.Variant {
	case VariantOrigin:
		return runOriginOnly(ctx, cfg)
	case VariantCDN:
		return runCDN(ctx, cfg)
	case VariantDHT:
		return runDHT(ctx, cfg)
	default:
		return runP2P(ctx, cfg)
	}
}

// p2pRun holds every piece of mutable state one full-swarm simulation
// run needs; its methods are the per-peer loop body (spec §4.1, §4.6,
// §5). A fresh p2pRun is built per Run call, so nothing here survives
// across runs (spec §7 "no leaks across runs").
type p2pRun struct {
	cfg        Config
	targetHash string
	originPath string

	origin *origin.Model
	room   *transport.Room
	agg    *metrics.Aggregator
	track  *propagationTracker

	start    time.Time
	deadline time.Time

	group *errgroup.Group
	gctx  context.Context

	mu       sync.Mutex
	peers    map[string]*swarm.Peer
	liveCount int
	nextIdx  int64

	churnMu         sync.Mutex
	churnEvents     int
	churnOutstanding bool
	churnAtMs       int64
	recoveryLatencies []float64
}

func runP2P(ctx context.Context, cfg Config) (Results, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	content := makeContent(cfg, rng)
	targetHash := simhash.Sum(content)
	originPath := cfg.TargetFile
	if originPath == "" {
		originPath = "/" + targetHash
	}

	maxConcurrent := int64(cfg.OriginMaxConcurrentSteady)
	if cfg.FlashCrowd {
		maxConcurrent = int64(cfg.OriginMaxConcurrentFlashCrowd)
	}

	start := time.Now()
	nowMsFn := func() int64 { return time.Since(start).Milliseconds() }

	agg := metrics.NewAggregator()
	room := transport.NewRoom(func(from, to, hash string, ok bool) {
		agg.RecordTransfer(metrics.FileTransferEvent{From: from, To: to, Hash: hash, TimestampMs: nowMsFn(), Successful: ok})
	})

	group, gctx := errgroup.WithContext(ctx)

	r := &p2pRun{
		cfg:        cfg,
		targetHash: targetHash,
		originPath: originPath,
		origin:     origin.New(maxConcurrent, content, "application/octet-stream"),
		room:       room,
		agg:        agg,
		track:      newPropagationTracker(),
		start:      start,
		deadline:   start.Add(time.Duration(cfg.DurationSec * float64(time.Second))),
		group:      group,
		gctx:       gctx,
		peers:      make(map[string]*swarm.Peer),
		nextIdx:    int64(cfg.NumPeers),
	}

	slog.Debug("driver: starting p2p run", "numPeers", cfg.NumPeers, "durationSec", cfg.DurationSec, "flashCrowd", cfg.FlashCrowd, "churnRate", cfg.ChurnRate)

	if cfg.FlashCrowd {
		group.Go(func() error { return r.dispatchFlashCrowd() })
	} else {
		for i := 0; i < cfg.NumPeers; i++ {
			i := i
			r.mu.Lock()
			r.liveCount++
			r.mu.Unlock()
			group.Go(func() error { return r.peerLoop(i, false) })
		}
	}

	if err := group.Wait(); err != nil {
		return Results{}, fmt.Errorf("simulation: %w", err)
	}

	return r.finish(), nil
}

// dispatchFlashCrowd paces peer joins at cfg.JoinRate peers/sec using a
// token-bucket limiter (spec §4.6 step 2), spawning one peer loop per
// unblocked token until the population target is reached or the
// simulation's deadline passes.
func (r *p2pRun) dispatchFlashCrowd() error {
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
		r.group.Go(func() error { return r.peerLoop(i, true) })
	}
	return nil
}

// peerLoop is one virtual peer's concurrent request loop (spec §4.6
// step 3): it joins the mock transport, then on every checkInterval tick
// rolls a request trial, periodically runs role/connection maintenance
// and auto-fetch, and rolls churn — all until the simulation's shared
// deadline, a natural session-length expiry, or a churn departure ends
// it first.
func (r *p2pRun) peerLoop(idx int, joinedViaAnchor bool) error {
	dev := deviceFor(r.cfg, r.cfg.Seed, idx)
	peerID := fmt.Sprintf("peer-%d", idx)
	if pid, err := swarm.NewPeerID(rand.New(rand.NewSource(r.cfg.Seed*104729 + int64(idx) + 17))); err == nil {
		peerID = pid
	}

	if joinedViaAnchor && r.cfg.AnchorSignalingLatencyMs > 0 {
		if err := sleepCtx(r.gctx, time.Duration(r.cfg.AnchorSignalingLatencyMs*float64(time.Millisecond))); err != nil {
			return nil
		}
	}

	nowMs := r.nowMs()
	p := swarm.NewPeer(peerID, dev.bandwidthMbps, dev.latencyMs, r.cfg.ReputationWeights, r.cfg.PromoteThreshold, nowMs)
	p.RequestTimeout = r.cfg.RequestTimeout

	if err := r.room.Join(r.gctx, peerID, p, dev.latencyMs, dev.bandwidthMbps); err != nil {
		return nil
	}

	r.mu.Lock()
	r.peers[peerID] = p
	r.mu.Unlock()

	joinNow := r.nowMs()
	r.agg.RecordJoin(metrics.PeerJoinEvent{PeerID: peerID, TimestampMs: joinNow, JoinedViaAnchor: joinedViaAnchor})
	slog.Debug("driver: peer joined", "peerId", peerID, "atMs", joinNow, "viaAnchor", joinedViaAnchor)

	if !time.Now().Before(r.deadline) {
		return nil
	}

	rng := rand.New(rand.NewSource(r.cfg.Seed*1299709 + int64(idx) + 31))
	pReq := r.cfg.effectiveRequestProbability() * float64(r.cfg.CheckInterval.Milliseconds()) / 1000.0

	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	joinedAt := time.Now()
	lastRoleEval := time.Now()
	lastHeartbeat := time.Now()

	for {
		select {
		case <-r.gctx.Done():
			return nil
		case now := <-ticker.C:
			if !now.Before(r.deadline) {
				return nil
			}
			nm := r.nowMs()

			if now.Sub(lastHeartbeat) >= transport.HeartbeatInterval {
				r.room.Heartbeat(peerID)
				lastHeartbeat = now
			}

			if bernoulli(rng, pReq) {
				r.issueRequest(p, r.targetHash, nm)
			}

			if now.Sub(lastRoleEval) >= r.cfg.RoleUpdateInterval {
				p.UpdateConnections(nm)
				p.UpdateRole(nm)
				if hash, ok := p.BestUncachedHash(); ok {
					r.issueRequest(p, hash, nm)
				}
				lastRoleEval = now
			}

			if now.Sub(joinedAt).Seconds() >= dev.uptimeBudget {
				r.leave(peerID, p)
				return nil
			}

			if r.cfg.ChurnRate > 0 && bernoulli(rng, r.cfg.ChurnRate) {
				switch r.cfg.ChurnMode {
				case ChurnLeaving:
					r.leave(peerID, p)
					return nil
				case ChurnMixed:
					r.leave(peerID, p)
					r.maybeSpawnReplacement()
					return nil
				case ChurnJoining:
					r.maybeSpawnReplacement()
				}
			}
		}
	}
}

// maybeSpawnReplacement spawns one new peer loop if the live population
// is still under the configured cap (spec §4.6 step 3 "a new
// replacement peer may be spawned up to numPeers cap").
func (r *p2pRun) maybeSpawnReplacement() {
	r.mu.Lock()
	if r.liveCount >= r.cfg.NumPeers {
		r.mu.Unlock()
		return
	}
	r.liveCount++
	idx := int(atomic.AddInt64(&r.nextIdx, 1)) - 1
	r.mu.Unlock()

	r.group.Go(func() error { return r.peerLoop(idx, r.cfg.FlashCrowd) })
}

// leave tears a peer down on churn or natural session expiry: it stops
// accruing uptime, disconnects from the transport (cancelling any of its
// pending requests with ChannelClosed per spec §4.4), and is removed
// from the registry other peers' broadcasts reach.
func (r *p2pRun) leave(peerID string, p *swarm.Peer) {
	slog.Debug("driver: peer leaving", "peerId", peerID, "atMs", r.nowMs())
	p.Disconnect()
	r.room.Disconnect(peerID)

	r.mu.Lock()
	delete(r.peers, peerID)
	r.liveCount--
	r.mu.Unlock()

	r.churnMu.Lock()
	r.churnEvents++
	r.churnOutstanding = true
	r.churnAtMs = r.nowMs()
	r.churnMu.Unlock()
}

// issueRequest runs one RequestResource call for p, measuring its wall
// time as the request's latency (the same clock the mock transport and
// origin model already use for their own modeled delays), records it
// into the aggregator, and — on first possession of the swarm's target
// resource — fans the peer's updated PeerInfo out to every other live
// peer so propagation (spec §4.6 step 3, §4.1 "Auto-fetch") can proceed.
func (r *p2pRun) issueRequest(p *swarm.Peer, hash string, nowMs int64) {
	hadBefore := p.CacheHas(hash)

	reqStart := time.Now()
	outcome := p.RequestResource(r.gctx, hash, r.originPath, r.room, r.origin, nowMs)
	latency := float64(time.Since(reqStart).Milliseconds())
	if outcome.Source == swarm.SourceOrigin {
		latency += p.NetworkLatencyMs // spec §4.5: origin latency + caller's egress latency
	}

	record := metrics.RequestRecord{
		TimestampMs:       nowMs,
		LatencyMs:         latency,
		Source:            toMetricsSource(outcome.Source),
		PeerID:            p.ID,
		PeerBandwidthMbps: p.BandwidthMbps,
		PeerBandwidthTier: metrics.Tier(p.BandwidthMbps),
		Successful:        outcome.Success,
		IsAnchor:          p.Role() == swarm.Anchor,
	}
	r.agg.RecordRequest(record)

	if !outcome.Success {
		return
	}
	if outcome.Source == swarm.SourcePeerCache {
		r.agg.RecordUploadServed(outcome.PeerID)
	}
	if outcome.Source == swarm.SourceOrigin {
		r.track.recordOriginFetch(nowMs)
	}
	r.recordRecovery(nowMs)

	if hash == r.targetHash && !hadBefore {
		r.track.recordHave(p.ID, nowMs)
		r.broadcast(p, nowMs)
	}
}

// broadcast fans p's updated PeerInfo out to every other currently live
// peer, the cross-call spec §4.6 step 3 describes ("refreshed by
// periodic addPeer cross-calls from the driver after every successful
// fetch"). This is how subsequent peers discover p in their chunkIndex.
func (r *p2pRun) broadcast(p *swarm.Peer, nowMs int64) {
	info := swarm.PeerInfo{
		PeerID:        p.ID,
		LastSeenMs:    nowMs,
		BandwidthMbps: p.BandwidthMbps,
		UptimeSec:     p.UptimeSec(nowMs),
		Reputation:    p.GetReputation(nowMs),
		Manifest:      p.Manifest(nowMs),
	}

	r.mu.Lock()
	others := make([]*swarm.Peer, 0, len(r.peers))
	for id, other := range r.peers {
		if id == p.ID {
			continue
		}
		others = append(others, other)
	}
	r.mu.Unlock()

	for _, other := range others {
		other.AddPeer(info)
	}
}

// recordRecovery closes out an outstanding churn event the first time
// any request succeeds after it, contributing to recoverySpeed (spec §6
// churn "recoverySpeed", scenario 3).
func (r *p2pRun) recordRecovery(nowMs int64) {
	r.churnMu.Lock()
	defer r.churnMu.Unlock()
	if !r.churnOutstanding {
		return
	}
	r.churnOutstanding = false
	r.recoveryLatencies = append(r.recoveryLatencies, float64(nowMs-r.churnAtMs))
}

func (r *p2pRun) nowMs() int64 { return time.Since(r.start).Milliseconds() }

// sleepCtx blocks for d or until ctx is cancelled, whichever comes first
// (spec §4.6 step 2's anchor-signaling delay).
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish runs the end-of-simulation steps (spec §4.6 step 4): one final
// updateConnections pass, then computes every derived metric.
func (r *p2pRun) finish() Results {
	finalMs := r.nowMs()

	r.mu.Lock()
	var anchors []string
	for _, p := range r.peers {
		p.UpdateConnections(finalMs)
		if p.Role() == swarm.Anchor {
			anchors = append(anchors, p.ID)
		}
	}
	r.mu.Unlock()

	requests := r.agg.Requests()
	input := r.track.input(r.cfg.NumPeers, len(requests))
	summary := r.agg.Compute(input)

	var recoverySpeed *float64
	r.churnMu.Lock()
	if len(r.recoveryLatencies) > 0 {
		var sum float64
		for _, v := range r.recoveryLatencies {
			sum += v
		}
		avg := sum / float64(len(r.recoveryLatencies))
		recoverySpeed = &avg
	}
	churnEvents := r.churnEvents
	r.churnMu.Unlock()

	return buildResults(summary, r.agg.Joins(), r.agg.Transfers(), anchors, requests,
		r.cfg.NumPeers, r.cfg.DurationSec, churnEvents, recoverySpeed)
}

// makeContent synthesizes the target resource's bytes deterministically
// from rng. A zero FileSizeBytes still yields a real (non-empty)
// resource at the driver level — spec §8's zero-length boundary case is
// about the chunking functions directly (internal/transport), not the
// driver's default payload.
func makeContent(cfg Config, rng *rand.Rand) []byte {
	size := cfg.FileSizeBytes
	if size <= 0 {
		size = 256 * 1024
	}
	content := make([]byte, size)
	rng.Read(content)
	return content
}

func toMetricsSource(s swarm.Source) metrics.Source {
	switch s {
	case swarm.SourceLocalCache:
		return metrics.SourceLocalCache
	case swarm.SourcePeerCache:
		return metrics.SourcePeerCache
	default:
		return metrics.SourceOrigin
	}
}
