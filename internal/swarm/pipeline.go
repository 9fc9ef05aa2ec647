package swarm

import (
	"context"

	"github.com/swarmsim/swarmsim/pkg/simhash"
)

// Source classifies where a RequestResource call ultimately satisfied a
// request, for metrics aggregation (spec §4.7).
type Source int

const (
	SourceLocalCache Source = iota
	SourcePeerCache
	SourceOrigin
)

func (s Source) String() string {
	switch s {
	case SourceLocalCache:
		return "local-cache"
	case SourcePeerCache:
		return "peer-cache"
	default:
		return "origin"
	}
}

// Outcome is what RequestResource always returns: either a Resource with
// Success true, or a zero Resource with Success false after every source
// has been exhausted. No error from a single peer or from origin ever
// propagates past this boundary (spec §7).
type Outcome struct {
	Resource Resource
	Source   Source
	PeerID   string // set only when Source == SourcePeerCache
	Attempts int
	Success  bool
}

// RequestResource runs the local-cache -> peer-retries -> origin-fallback
// pipeline (spec §4.1). nowMs is the simulation's logical clock, used to
// stamp newly cached resources so runs stay reproducible under a seeded
// driver.
func (p *Peer) RequestResource(ctx context.Context, hash, originPath string, network PeerNetwork, origin OriginFetcher, nowMs int64) Outcome {
	if r, ok := p.cache.Get(hash); ok {
		return Outcome{Resource: r, Source: SourceLocalCache, Success: true}
	}

	p.mu.Lock()
	q, exists := p.chunkIndex[hash]
	p.mu.Unlock()
	if !exists || q.Size() == 0 {
		return p.fetchOrigin(ctx, hash, originPath, origin, nowMs, 0)
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		peerID, ok := p.nextCandidate(hash)
		if !ok {
			return p.fetchOrigin(ctx, hash, originPath, origin, nowMs, attempt)
		}

		data, err := network.RequestFromPeer(ctx, p.ID, peerID, hash, p.RequestTimeout)
		if err != nil {
			p.RecordFailedTransfer()
			network.RecordTransfer(peerID, p.ID, hash, false)
			p.evictCandidate(hash, peerID)
			continue
		}

		if !simhash.Verify(data, hash) {
			p.RecordFailedTransfer()
			network.RecordTransfer(peerID, p.ID, hash, false)
			p.evictCandidate(hash, peerID)
			continue
		}

		resource := Resource{
			Hash:            hash,
			Content:         data,
			CachedAtSeconds: float64(nowMs) / 1000.0,
		}
		p.store(resource)
		network.CreditUpload(peerID)
		network.RecordTransfer(peerID, p.ID, hash, true)
		return Outcome{Resource: resource, Source: SourcePeerCache, PeerID: peerID, Attempts: attempt, Success: true}
	}

	return p.fetchOrigin(ctx, hash, originPath, origin, nowMs, maxRetries)
}

// nextCandidate pops peers from hash's chunk-index queue, discarding any
// whose PeerInfo is unknown or whose advertised manifest no longer lists
// hash, until it finds one worth trying or the queue runs dry. Neither
// discard consumes a retry attempt (spec §4.1 step 3b/3c).
func (p *Peer) nextCandidate(hash string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, exists := p.chunkIndex[hash]
	if !exists {
		return "", false
	}
	for {
		peerID, ok := q.PeekMax()
		if !ok {
			delete(p.chunkIndex, hash)
			return "", false
		}
		info, known := p.peerIndex[peerID]
		if !known || !info.Manifest.Has(hash) {
			q.DeletePeer(peerID)
			continue
		}
		return peerID, true
	}
}

// evictCandidate removes peerID from hash's chunk index after a failed
// or mismatched attempt, so the next retry picks a different provider.
func (p *Peer) evictCandidate(hash, peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if q, ok := p.chunkIndex[hash]; ok {
		q.DeletePeer(peerID)
	}
}

// fetchOrigin is the terminal step of the pipeline: every other source
// has been tried (or none existed), so origin is asked directly. Even a
// failed origin fetch is absorbed into a non-successful Outcome rather
// than returned as an error (spec §7).
func (p *Peer) fetchOrigin(ctx context.Context, hash, originPath string, origin OriginFetcher, nowMs int64, attempts int) Outcome {
	content, mimeType, err := origin.Fetch(ctx, hash, originPath)
	if err != nil {
		return Outcome{Source: SourceOrigin, Attempts: attempts, Success: false}
	}
	resource := Resource{
		Hash:            hash,
		Content:         content,
		MimeType:        mimeType,
		CachedAtSeconds: float64(nowMs) / 1000.0,
	}
	p.store(resource)
	return Outcome{Resource: resource, Source: SourceOrigin, Attempts: attempts, Success: true}
}
