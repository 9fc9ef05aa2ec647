// Package transport models the in-process P2P transport the simulation
// driver uses to carry modeled WebRTC DataChannel traffic between peers
// (spec §4.4): rooms of joined participants, per-link latency and
// per-peer bandwidth, request/response/chunk message timing, and
// heartbeat-based liveness.
package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmsim/swarmsim/internal/swarm"
)

// HeartbeatInterval and heartbeatTimeout implement spec §5's "preserved
// for faithfulness" heartbeat rule: a link with no heartbeat for
// heartbeatTimeout is treated as torn down. HeartbeatInterval is exported
// so callers driving a participant's liveness (the simulation driver's
// per-peer loop) know how often to call Heartbeat.
const (
	HeartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 15 * time.Second
)

// TransferRecorder is called once per completed request attempt
// (successful or not) for the simulation's fileTransferEvents log (spec
// §4.1 step f, §5). Mirrors the teacher's ConnectionRecorder callback
// shape (pkg/p2pnet/peermanager.go).
type TransferRecorder func(fromPeerID, toPeerID, hash string, successful bool)

type participant struct {
	peer          *swarm.Peer
	latencyMs     float64
	bandwidthMbps float64
	open          bool
	lastHeartbeat time.Time
}

// Room is a named bucket of joined participants — the mock-transport
// analog of a WebRTC room. It implements swarm.PeerNetwork.
type Room struct {
	mu           sync.RWMutex
	participants map[string]*participant
	onTransfer   TransferRecorder
}

// NewRoom returns an empty room. onTransfer may be nil.
func NewRoom(onTransfer TransferRecorder) *Room {
	return &Room{
		participants: make(map[string]*participant),
		onTransfer:   onTransfer,
	}
}

// Join blocks for the participant's modeled latency, then opens its
// endpoint in the room (spec §4.4 join contract).
func (r *Room) Join(ctx context.Context, peerID string, peer *swarm.Peer, latencyMs, bandwidthMbps float64) error {
	if err := sleep(ctx, msDuration(latencyMs)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[peerID] = &participant{
		peer:          peer,
		latencyMs:     latencyMs,
		bandwidthMbps: bandwidthMbps,
		open:          true,
		lastHeartbeat: time.Now(),
	}
	return nil
}

// Disconnect removes peerID from the room (spec §4.4 disconnect
// contract). RequestFromPeer is synchronous per call, so there is no
// separate pending-request table to fail out from under a caller; the
// next lookup of peerID simply reports swarm.ErrChannelClosed.
func (r *Room) Disconnect(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, peerID)
}

// Heartbeat refreshes peerID's liveness deadline.
func (r *Room) Heartbeat(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[peerID]; ok {
		p.lastHeartbeat = time.Now()
	}
}

func (r *Room) lookup(peerID string) (*participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[peerID]
	if !ok || !p.open {
		return nil, false
	}
	if time.Since(p.lastHeartbeat) > heartbeatTimeout {
		return nil, false
	}
	return p, true
}

// RequestFromPeer implements swarm.PeerNetwork: it delivers a
// file-request to toPeerID, invokes its grantChunk, and — on a hit —
// simulates the file-response + chunked transfer + file-complete
// sequence before returning reassembled bytes (spec §4.1 step d, §4.4).
func (r *Room) RequestFromPeer(ctx context.Context, fromPeerID, toPeerID, hash string, timeout time.Duration) ([]byte, error) {
	from, ok := r.lookup(fromPeerID)
	if !ok {
		return nil, swarm.ErrChannelClosed
	}
	to, ok := r.lookup(toPeerID)
	if !ok {
		slog.Debug("transport: request target channel closed", "from", fromPeerID, "to", toPeerID)
		return nil, swarm.ErrChannelClosed
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The requestId is carried for wire-schema parity with a real
	// DataChannel payload; nothing here branches on its value.
	_ = uuid.NewString()

	if err := sleep(reqCtx, msDuration(from.latencyMs+to.latencyMs)); err != nil {
		return nil, swarm.ErrTimeout
	}

	resource, has := to.peer.GrantChunk(hash)
	if !has {
		slog.Debug("transport: peer missing requested resource", "from", fromPeerID, "to", toPeerID, "hash", hash)
		return nil, swarm.ErrPeerMissingResource
	}

	chunks := SplitChunks(resource.Content)
	perChunkDelay := chunkDelayMs(len(resource.Content), len(chunks), to.bandwidthMbps, to.latencyMs)
	for range chunks {
		if err := sleep(reqCtx, msDuration(perChunkDelay)); err != nil {
			return nil, swarm.ErrTimeout
		}
	}

	return ReassembleChunks(chunks), nil
}

// CreditUpload implements swarm.PeerNetwork: credited only after the
// requester has independently verified the response hash.
func (r *Room) CreditUpload(peerID string) {
	r.mu.RLock()
	p, ok := r.participants[peerID]
	r.mu.RUnlock()
	if ok {
		p.peer.RecordSuccessfulUpload()
	}
}

// RecordTransfer implements swarm.PeerNetwork by forwarding to the room's
// configured recorder, if any.
func (r *Room) RecordTransfer(fromPeerID, toPeerID, hash string, successful bool) {
	if r.onTransfer != nil {
		r.onTransfer(fromPeerID, toPeerID, hash, successful)
	}
}

// RequestManifest delivers manifest, the caller-supplied snapshot of
// toPeerID's cache, from toPeerID to fromPeerID, charging the modeled
// latency plus the gzip-estimated wire size of the manifest-response
// message (spec §4.4 manifest-request/response). It returns manifest
// unchanged; it does not read toPeerID's cache itself.
func (r *Room) RequestManifest(ctx context.Context, fromPeerID, toPeerID string, manifest swarm.Manifest) (swarm.Manifest, error) {
	from, ok := r.lookup(fromPeerID)
	if !ok {
		return swarm.Manifest{}, swarm.ErrChannelClosed
	}
	to, ok := r.lookup(toPeerID)
	if !ok {
		return swarm.Manifest{}, swarm.ErrChannelClosed
	}

	byteLength, err := ManifestByteLength(manifest)
	if err != nil {
		return swarm.Manifest{}, err
	}
	delay := from.latencyMs + to.latencyMs + transferMs(byteLength, to.bandwidthMbps)
	if err := sleep(ctx, msDuration(delay)); err != nil {
		return swarm.Manifest{}, swarm.ErrTimeout
	}
	return manifest, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
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

func msDuration(ms float64) time.Duration {
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// transferMs converts a byte length and bandwidth into a transmission
// time in milliseconds: (byteLength*8 bits) / (bandwidthMbps*1e6 bps) *
// 1000.
func transferMs(byteLength int, bandwidthMbps float64) float64 {
	if bandwidthMbps <= 0 {
		bandwidthMbps = 1
	}
	return (float64(byteLength) * 8) / (bandwidthMbps * 1e6) * 1000
}

// chunkDelayMs is the per-chunk delay formula from spec §4.4: total
// transmission time spread evenly over totalChunks, plus one latencyMs
// hop per chunk.
func chunkDelayMs(byteLength, totalChunks int, bandwidthMbps, latencyMs float64) float64 {
	if totalChunks <= 0 {
		totalChunks = 1
	}
	return transferMs(byteLength, bandwidthMbps)/float64(totalChunks) + latencyMs
}
