package simulation

import (
	"sync"

	"github.com/swarmsim/swarmsim/internal/metrics"
)

// propagationTracker records the two timestamps spec §4.7's propagation
// milestones are computed from: when the target resource was first
// fetched from origin by anyone, and when each peer first came to
// possess it by any means.
type propagationTracker struct {
	mu                   sync.Mutex
	firstOriginFetchMs   int64
	haveFirstOriginFetch bool
	firstHave            map[string]int64
}

func newPropagationTracker() *propagationTracker {
	return &propagationTracker{firstHave: make(map[string]int64)}
}

func (t *propagationTracker) recordOriginFetch(nowMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveFirstOriginFetch {
		t.haveFirstOriginFetch = true
		t.firstOriginFetchMs = nowMs
	}
}

func (t *propagationTracker) recordHave(peerID string, nowMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.firstHave[peerID]; !ok {
		t.firstHave[peerID] = nowMs
	}
}

func (t *propagationTracker) input(totalPeers, originRequestsExpected int) metrics.PropagationInput {
	t.mu.Lock()
	defer t.mu.Unlock()
	firstHave := make(map[string]int64, len(t.firstHave))
	for k, v := range t.firstHave {
		firstHave[k] = v
	}
	return metrics.PropagationInput{
		TotalPeers:             totalPeers,
		FirstOriginFetchMs:     t.firstOriginFetchMs,
		HaveFirstOriginFetch:   t.haveFirstOriginFetch,
		PeerFirstHaveMs:        firstHave,
		OriginRequestsExpected: originRequestsExpected,
	}
}
