package swarm

import (
	"context"
	"time"
)

// PeerNetwork is the mock-transport seam a Peer's request pipeline uses
// to ask another peer for a chunk. internal/transport implements this
// over an in-process message bus; swarm never imports transport, so the
// dependency only runs one way.
type PeerNetwork interface {
	// RequestFromPeer asks toPeerID for hash on behalf of fromPeerID and
	// blocks until the bytes arrive, the peer reports it doesn't have
	// the resource, the channel closes, or timeout elapses.
	RequestFromPeer(ctx context.Context, fromPeerID, toPeerID, hash string, timeout time.Duration) ([]byte, error)

	// CreditUpload credits peerID with a successful upload. The pipeline
	// calls this only after it has independently verified the received
	// bytes hash to what was requested, so transport never has to trust
	// its own delivery before the requester has checked it.
	CreditUpload(peerID string)

	// RecordTransfer reports one completed attempt (successful or not)
	// between two peers for the simulation's event log and metrics.
	RecordTransfer(fromPeerID, toPeerID, hash string, successful bool)
}

// OriginFetcher is the seam a Peer's request pipeline uses to fall back
// to the origin model. internal/origin implements this.
type OriginFetcher interface {
	Fetch(ctx context.Context, hash, originPath string) (content []byte, mimeType string, err error)
}
