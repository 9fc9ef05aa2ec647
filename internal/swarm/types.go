// Package swarm implements the virtual peer model: per-peer state,
// reputation, role hysteresis, local cache, manifest, and the
// local-cache -> peer-with-retries -> origin-fallback request pipeline
// (spec §3, §4.1).
package swarm

import "time"

// Resource is an opaque, hash-identified byte buffer (spec §3).
type Resource struct {
	Hash            string
	Content         []byte
	MimeType        string
	CachedAtSeconds float64
}

// ManifestEntry describes one resource a peer advertises as cached.
type ManifestEntry struct {
	Hash            string `json:"hash"`
	ByteLength      int    `json:"byteLength"`
	MimeType        string `json:"mimeType"`
	CachedAtSeconds float64 `json:"cachedAtSeconds"`
}

// Manifest is a read-only-after-publication snapshot of a peer's cache,
// advertised to other peers (spec §3).
type Manifest struct {
	PeerID             string          `json:"peerId"`
	GeneratedAtSeconds float64         `json:"generatedAtSeconds"`
	Resources          []ManifestEntry `json:"resources"`
}

// Has reports whether the manifest currently advertises hash.
func (m Manifest) Has(hash string) bool {
	for _, e := range m.Resources {
		if e.Hash == hash {
			return true
		}
	}
	return false
}

// GenerateManifest snapshots cache into a Manifest for peerId, the way
// every addPeer advertisement and every periodic republish does.
func GenerateManifest(peerID string, entries map[string]Resource, now time.Time) Manifest {
	m := Manifest{
		PeerID:             peerID,
		GeneratedAtSeconds: float64(now.UnixMilli()) / 1000.0,
		Resources:          make([]ManifestEntry, 0, len(entries)),
	}
	for hash, r := range entries {
		m.Resources = append(m.Resources, ManifestEntry{
			Hash:            hash,
			ByteLength:      len(r.Content),
			MimeType:        r.MimeType,
			CachedAtSeconds: r.CachedAtSeconds,
		})
	}
	return m
}

// PeerInfo is what one peer knows about another (spec §3): created on
// addPeer, mutated by refresh, destroyed when stale (30s since LastSeen).
type PeerInfo struct {
	PeerID        string
	LastSeenMs    int64
	BandwidthMbps float64
	UptimeSec     float64
	Reputation    float64
	Manifest      Manifest
}

// Role is a peer's signaling capability class (spec §4.1, GLOSSARY).
type Role int

const (
	Transient Role = iota
	Anchor
)

func (r Role) String() string {
	if r == Anchor {
		return "anchor"
	}
	return "transient"
}

// peerStaleAfter is how long a PeerInfo survives without a refresh
// before updateConnections prunes it (spec §3 invariants).
const peerStaleAfter = 30 * time.Second
