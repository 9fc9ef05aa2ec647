package swarm

import "errors"

// Sentinel errors for the request pipeline's recovered failure taxonomy
// (spec §7). None of these ever propagate out of RequestResource — the
// pipeline always returns an Outcome, either with a Resource and
// Success true or with Success false.
var (
	// ErrPeerMissingResource is returned by a PeerNetwork when the
	// selected peer no longer has the requested hash cached.
	ErrPeerMissingResource = errors.New("swarm: peer missing resource")

	// ErrChunkDecode is returned when reassembled chunk bytes could not
	// be decoded into a response.
	ErrChunkDecode = errors.New("swarm: chunk decode error")

	// ErrHashMismatch is returned when received bytes don't hash to the
	// requested identifier.
	ErrHashMismatch = errors.New("swarm: hash mismatch")

	// ErrTimeout is returned when a peer request exceeds its timeout.
	ErrTimeout = errors.New("swarm: request timeout")

	// ErrChannelClosed is returned when the peer's transport channel
	// was torn down mid-request.
	ErrChannelClosed = errors.New("swarm: channel closed")

	// ErrExhausted names the case where even the origin fallback fails to
	// produce a resource. RequestResource does not return it; it reports
	// that case as an Outcome with Success false.
	ErrExhausted = errors.New("swarm: request exhausted all sources")

	// ErrConfigInvalid is fatal before a simulation starts (spec §7).
	ErrConfigInvalid = errors.New("swarm: invalid configuration")
)
