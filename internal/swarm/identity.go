package swarm

import (
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// NewPeerID derives a real libp2p peer.ID from an Ed25519 keypair read
// from src, the way pkg/p2pnet.LoadOrCreateIdentity derives one from a
// key file. The simulator never opens a libp2p host or dials anything —
// this only gives simulated peers production-shaped opaque identities
// that are reproducible when src is a seeded deterministic reader.
func NewPeerID(src io.Reader) (string, error) {
	priv, _, err := crypto.GenerateEd25519Key(src)
	if err != nil {
		return "", fmt.Errorf("swarm: generate identity: %w", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("swarm: derive peer id: %w", err)
	}
	return id.String(), nil
}
