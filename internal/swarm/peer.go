package swarm

import (
	"sync"
	"time"

	"github.com/swarmsim/swarmsim/pkg/memcache"
	"github.com/swarmsim/swarmsim/pkg/pqueue"
)

// maxRetries bounds how many candidate peers the request pipeline tries
// before falling back to origin (spec §4.1 step 3).
const maxRetries = 3

// Default request timeouts (spec §9 Open Question: the source has two
// defaults, both preserved here as configurable fields).
const (
	DefaultInMemoryRequestTimeout = 3 * time.Second
	DefaultServerRequestTimeout   = 30 * time.Second
)

// DefaultRoleUpdateInterval is how often UpdateRole and the driver's auto-fetch
// tick are expected to run (spec §4.1); the driver owns the ticker, this
// is just the documented default.
const DefaultRoleUpdateInterval = 10 * time.Second

// Peer is one virtual swarm participant: its own device/session state,
// its local cache, and its view of the rest of the swarm (spec §3).
type Peer struct {
	ID                string
	BandwidthMbps     float64
	NetworkLatencyMs  float64
	StorageMB         float64
	BatteryPct        float64
	ConnectionStartMs int64
	RequestTimeout    time.Duration
	Weights           ReputationWeights
	PromoteThreshold  float64
	DemoteThreshold   float64 // conventionally 0.85 * PromoteThreshold

	mu                      sync.Mutex
	isConnected             bool
	role                    Role
	successfulUploads       int
	failedTransfers         int
	integrityVerifications  int
	cache                   *memcache.Cache[Resource]
	peerIndex               map[string]*PeerInfo
	chunkIndex              map[string]*pqueue.PQueue
	lastRoleEval            time.Time
}

// NewPeer constructs a peer joined at nowMs, starting transient with an
// empty cache and empty indices.
func NewPeer(id string, bandwidthMbps, networkLatencyMs float64, weights ReputationWeights, promoteThreshold float64, nowMs int64) *Peer {
	return &Peer{
		ID:                id,
		BandwidthMbps:     bandwidthMbps,
		NetworkLatencyMs:  networkLatencyMs,
		ConnectionStartMs: nowMs,
		RequestTimeout:    DefaultInMemoryRequestTimeout,
		Weights:           weights,
		PromoteThreshold:  promoteThreshold,
		DemoteThreshold:   0.85 * promoteThreshold,
		isConnected:       true,
		role:              Transient,
		cache:             memcache.New[Resource](),
		peerIndex:         make(map[string]*PeerInfo),
		chunkIndex:        make(map[string]*pqueue.PQueue),
	}
}

// UptimeSec returns connected time as of nowMs.
func (p *Peer) UptimeSec(nowMs int64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isConnected {
		return 0
	}
	return float64(nowMs-p.ConnectionStartMs) / 1000.0
}

// Role returns the peer's current role.
func (p *Peer) Role() Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role
}

// Disconnect marks the peer as left; it stops accruing uptime.
func (p *Peer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isConnected = false
}

// GetReputation computes the weighted reputation score (spec §4.1).
func (p *Peer) GetReputation(nowMs int64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	uptime := 0.0
	if p.isConnected {
		uptime = float64(nowMs-p.ConnectionStartMs) / 1000.0
	}
	return p.Weights.score(p.successfulUploads, p.integrityVerifications, p.failedTransfers,
		p.BandwidthMbps, uptime, p.StorageMB, p.BatteryPct)
}

// RecordSuccessfulUpload credits the peer for having served a chunk.
func (p *Peer) RecordSuccessfulUpload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successfulUploads++
}

// RecordFailedTransfer penalizes the peer for a failed transfer.
func (p *Peer) RecordFailedTransfer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failedTransfers++
}

// RecordIntegrityVerification credits the peer for a verified transfer,
// used only by the server-facing reputation weights.
func (p *Peer) RecordIntegrityVerification() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integrityVerifications++
}

// Counters returns a snapshot of the peer's counters for metrics/tests.
func (p *Peer) Counters() (successfulUploads, failedTransfers, integrityVerifications int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successfulUploads, p.failedTransfers, p.integrityVerifications
}

// AddPeer upserts otherPeerID's PeerInfo in this peer's indices and
// refreshes the chunk index for every hash the advertised manifest
// contains (spec §4.1 addPeer). Calling it twice with the same info is
// idempotent (spec §8 round-trip property).
func (p *Peer) AddPeer(info PeerInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, had := p.peerIndex[info.PeerID]
	cp := info
	p.peerIndex[info.PeerID] = &cp

	// Remove stale chunk-index entries for hashes the peer no longer
	// advertises (its manifest shrank or changed).
	if had {
		for _, oldEntry := range existing.Manifest.Resources {
			if !cp.Manifest.Has(oldEntry.Hash) {
				if q, ok := p.chunkIndex[oldEntry.Hash]; ok {
					q.DeletePeer(info.PeerID)
				}
			}
		}
	}

	for _, e := range cp.Manifest.Resources {
		q, ok := p.chunkIndex[e.Hash]
		if !ok {
			q = pqueue.New()
			p.chunkIndex[e.Hash] = q
		}
		q.Insert(cp.Reputation, cp.PeerID)
	}
}

// GetPeerInfo returns a value-copy snapshot of what this peer knows
// about otherPeerID, satisfying the "readers see a consistent snapshot"
// concurrency rule (spec §5).
func (p *Peer) GetPeerInfo(otherPeerID string) (PeerInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.peerIndex[otherPeerID]
	if !ok {
		return PeerInfo{}, false
	}
	return *info, true
}

// UpdateConnections prunes neighbors whose LastSeenMs is older than 30s
// as of nowMs, and removes the resulting stale chunk-index entries
// (spec §3 invariants, §4.1).
func (p *Peer) UpdateConnections(nowMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	staleBefore := nowMs - peerStaleAfter.Milliseconds()
	for id, info := range p.peerIndex {
		if info.LastSeenMs < staleBefore {
			delete(p.peerIndex, id)
			for _, q := range p.chunkIndex {
				q.DeletePeer(id)
			}
		}
	}
}

// UpdateRole applies one-way-per-tick hysteresis: promote transient ->
// anchor when score >= PromoteThreshold, demote anchor -> transient when
// score < DemoteThreshold (spec §4.1, §3 invariants).
func (p *Peer) UpdateRole(nowMs int64) {
	score := p.GetReputation(nowMs)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.role {
	case Transient:
		if score >= p.PromoteThreshold {
			p.role = Anchor
		}
	case Anchor:
		if score < p.DemoteThreshold {
			p.role = Transient
		}
	}
	p.lastRoleEval = time.UnixMilli(nowMs)
}

// GrantChunk serves a cached resource to a requesting peer, or reports
// it isn't cached (spec §4.1).
func (p *Peer) GrantChunk(hash string) (Resource, bool) {
	return p.cache.Get(hash)
}

// CacheHas reports whether the local cache already has hash.
func (p *Peer) CacheHas(hash string) bool {
	return p.cache.Has(hash)
}

// Manifest builds the manifest a caller on the other end of a
// RequestManifest call would see: every resource this peer currently has
// cached, as of nowMs (spec §4.1 "manifest exchange").
func (p *Peer) Manifest(nowMs int64) Manifest {
	return GenerateManifest(p.ID, p.cache.Entries(), time.UnixMilli(nowMs))
}

// store caches a verified resource.
func (p *Peer) store(r Resource) {
	p.cache.Set(r.Hash, r, 0)
}

// Seed directly populates the local cache with a resource, bypassing the
// request pipeline. Tests use it to set up grantChunk fixtures without
// running a whole fetch. The simulation driver does not call it: the
// first peer to request the target gets it from origin through
// RequestResource.
func (p *Peer) Seed(r Resource) {
	p.store(r)
}

// BestUncachedHash returns the hash with the single highest-reputation
// provider among this peer's chunk index that the peer doesn't already
// have cached — the target of the driver's per-tick auto-fetch (spec
// §4.1 "Auto-fetch").
func (p *Peer) BestUncachedHash() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bestHash := ""
	bestKey := 0.0
	found := false
	for hash, q := range p.chunkIndex {
		if p.cache.Has(hash) {
			continue
		}
		if q.Size() == 0 {
			continue
		}
		_, ok := q.PeekMax()
		if !ok {
			continue
		}
		key := p.chunkKey(hash)
		if !found || key > bestKey {
			bestHash, bestKey, found = hash, key, true
		}
	}
	return bestHash, found
}

// chunkKey looks up the max reputation currently on file for hash. Must
// be called with p.mu held.
func (p *Peer) chunkKey(hash string) float64 {
	q, ok := p.chunkIndex[hash]
	if !ok {
		return 0
	}
	key, ok := q.PeekMaxKey()
	if !ok {
		return 0
	}
	return key
}
