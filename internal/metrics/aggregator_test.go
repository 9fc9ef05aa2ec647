package metrics

import (
	"testing"

	"pgregory.net/rapid"
)

func TestCompute_CountsAndRatios(t *testing.T) {
	a := NewAggregator()
	a.RecordRequest(RequestRecord{TimestampMs: 1, LatencyMs: 5, Source: SourceLocalCache, PeerID: "p1"})
	a.RecordRequest(RequestRecord{TimestampMs: 2, LatencyMs: 40, Source: SourcePeerCache, PeerID: "p2"})
	a.RecordRequest(RequestRecord{TimestampMs: 3, LatencyMs: 80, Source: SourceOrigin, PeerID: "p3"})

	s := a.Compute(PropagationInput{})
	if s.TotalRequests != 3 {
		t.Fatalf("TotalRequests = %d, want 3", s.TotalRequests)
	}
	if s.LocalCacheHits != 1 || s.PeerRequests != 1 || s.OriginRequests != 1 {
		t.Fatalf("got local=%d peer=%d origin=%d, want 1/1/1", s.LocalCacheHits, s.PeerRequests, s.OriginRequests)
	}
	wantRatio := float64(2) / 3 * 100
	if s.CacheHitRatio != wantRatio {
		t.Fatalf("CacheHitRatio = %v, want %v", s.CacheHitRatio, wantRatio)
	}
	if s.BandwidthSaved != s.CacheHitRatio {
		t.Fatalf("BandwidthSaved = %v, want == CacheHitRatio %v", s.BandwidthSaved, s.CacheHitRatio)
	}
}

func TestJainFairness_EqualUploadsIsOne(t *testing.T) {
	uploads := map[string]int{"a": 5, "b": 5, "c": 5}
	if got := jainFairness(uploads); got != 1 {
		t.Fatalf("jainFairness(equal) = %v, want 1", got)
	}
}

func TestJainFairness_EmptyIsZero(t *testing.T) {
	if got := jainFairness(map[string]int{}); got != 0 {
		t.Fatalf("jainFairness(empty) = %v, want 0", got)
	}
}

func TestJainFairness_BoundedZeroToOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		uploads := make(map[string]int, n)
		for i := 0; i < n; i++ {
			id := "peer-" + string(rune('a'+i))
			uploads[id] = rapid.IntRange(0, 1000).Draw(t, "uploads")
		}
		got := jainFairness(uploads)
		if got < 0 || got > 1 {
			t.Fatalf("jainFairness = %v, want in [0,1]", got)
		}
	})
}

func TestCacheHitRatio_BoundedZeroToHundred(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "n")
		a := NewAggregator()
		sources := []Source{SourceLocalCache, SourcePeerCache, SourceOrigin}
		for i := 0; i < n; i++ {
			src := sources[rapid.IntRange(0, 2).Draw(t, "src")]
			a.RecordRequest(RequestRecord{LatencyMs: float64(rapid.IntRange(0, 500).Draw(t, "lat")), Source: src, PeerID: "p"})
		}
		s := a.Compute(PropagationInput{})
		if s.CacheHitRatio < 0 || s.CacheHitRatio > 100 {
			t.Fatalf("CacheHitRatio = %v, want in [0,100]", s.CacheHitRatio)
		}
		if s.TotalRequests != s.LocalCacheHits+s.PeerRequests+s.OriginRequests {
			t.Fatalf("accounting identity broken: total=%d local=%d peer=%d origin=%d",
				s.TotalRequests, s.LocalCacheHits, s.PeerRequests, s.OriginRequests)
		}
	})
}

func TestComputePercentiles_SortedAscendingBounds(t *testing.T) {
	p := computePercentiles([]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100})
	if p.P50 < p.P5 || p.P90 < p.P50 || p.P99 < p.P90 {
		t.Fatalf("percentiles not monotonic: %+v", p)
	}
}

func TestWorstCase_PicksHighestP99(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < 5; i++ {
		a.RecordRequest(RequestRecord{LatencyMs: 10, Source: SourcePeerCache, PeerID: "fast"})
	}
	a.RecordRequest(RequestRecord{LatencyMs: 900, Source: SourcePeerCache, PeerID: "slow"})

	s := a.Compute(PropagationInput{})
	if s.WorstCase.WorstPerformingPeer.ID != "slow" {
		t.Fatalf("worst peer = %q, want slow", s.WorstCase.WorstPerformingPeer.ID)
	}
}
