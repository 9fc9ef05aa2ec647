package metrics

import "sync"

// Aggregator collects request records, transfer events and join events as
// a simulation runs, and computes the derived metrics spec §4.7 defines.
// All append methods are safe for concurrent use by many peer loops (spec
// §5: "metrics sink — append-only; safe for concurrent append").
type Aggregator struct {
	mu sync.Mutex

	requests  []RequestRecord
	transfers []FileTransferEvent
	joins     []PeerJoinEvent

	uploadsServed map[string]int // peerId -> uploads served, for Jain fairness

	firstP2PTransferMs int64
	haveFirstP2P       bool
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		uploadsServed: make(map[string]int),
	}
}

// RecordRequest appends one completed request's outcome. Per-peer
// latency series and worst-case metadata are derived from this log at
// Compute time rather than duplicated here.
func (a *Aggregator) RecordRequest(r RequestRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, r)
}

// RecordUploadServed credits peerID with having served one chunk, the
// per-peer counter Jain fairness is computed over (spec §4.7).
func (a *Aggregator) RecordUploadServed(peerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploadsServed[peerID]++
}

// RecordTransfer appends a peer-to-peer transfer event and tracks the
// first successful one for the propagation milestones (spec §4.7
// "from first peer→peer transfer").
func (a *Aggregator) RecordTransfer(e FileTransferEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transfers = append(a.transfers, e)
	if e.Successful && !a.haveFirstP2P {
		a.haveFirstP2P = true
		a.firstP2PTransferMs = e.TimestampMs
	}
}

// RecordJoin appends a peer-join event.
func (a *Aggregator) RecordJoin(e PeerJoinEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.joins = append(a.joins, e)
}

// Requests returns a copy of every recorded request, for callers
// assembling the raw allRequestMetrics log (spec §6).
func (a *Aggregator) Requests() []RequestRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RequestRecord(nil), a.requests...)
}

// Transfers returns a copy of every recorded transfer event.
func (a *Aggregator) Transfers() []FileTransferEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]FileTransferEvent(nil), a.transfers...)
}

// Joins returns a copy of every recorded join event.
func (a *Aggregator) Joins() []PeerJoinEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]PeerJoinEvent(nil), a.joins...)
}
