package metrics

import "sort"

// NodeTypeMetrics is the latency breakdown for one role class (spec §6
// latencyByNodeType).
type NodeTypeMetrics struct {
	AvgLatency   float64
	P5           float64
	P50          float64
	P95          float64
	P99          float64
	RequestCount int
}

// WorstPeer describes the peer with the highest per-peer p99 latency
// (spec §4.7 worstPerformingPeer, GLOSSARY).
type WorstPeer struct {
	ID            string
	LatencyMs     float64
	BandwidthMbps float64
	Tier          BandwidthTier
	IsAnchor      bool
	P99Latency    float64
}

// WorstCaseMetrics wraps the worst-performing peer alongside the overall
// p99 (spec §6 worstCaseMetrics).
type WorstCaseMetrics struct {
	P99Latency          float64
	WorstPerformingPeer WorstPeer
}

// PropagationMetrics captures how quickly the target resource spread
// through the swarm after its first origin fetch (spec §4.7, §6
// propagationMetrics).
type PropagationMetrics struct {
	TimeTo50Percent     *float64
	TimeTo90Percent     *float64
	TimeTo100Percent    *float64
	AvgTimeToReceive    *float64
	PropagationRate     *float64
	TimeToFirstP2P      *float64
	OriginLoadReduction *float64
}

// Summary is every derived metric spec §4.7/§6 defines, computed from
// whatever an Aggregator accumulated over a run.
type Summary struct {
	TotalRequests   int
	PeerRequests    int
	OriginRequests  int
	LocalCacheHits  int
	NetworkRequests int

	CacheHitRatio        float64
	NetworkCacheHitRatio float64
	BandwidthSaved       float64

	AvgLatency        float64
	NetworkAvgLatency float64

	LatencyPercentiles Percentiles
	LatencyByNodeType  map[string]NodeTypeMetrics // "anchor" | "transient"

	WorstCase WorstCaseMetrics

	JainFairnessIndex float64

	Propagation PropagationMetrics
}

// PropagationInput is the extra, driver-owned context propagation
// milestones need: when the resource first arrived at origin via a
// cache miss, and when each live peer first came to possess it (spec
// §4.7 "from first peer→peer transfer").
type PropagationInput struct {
	TotalPeers             int
	FirstOriginFetchMs     int64
	HaveFirstOriginFetch   bool
	PeerFirstHaveMs        map[string]int64
	OriginRequestsExpected int
}

// Compute derives Summary from everything recorded so far. It is safe to
// call mid-run as well as at simulation end.
func (a *Aggregator) Compute(input PropagationInput) Summary {
	a.mu.Lock()
	requests := append([]RequestRecord(nil), a.requests...)
	uploadsServed := make(map[string]int, len(a.uploadsServed))
	for k, v := range a.uploadsServed {
		uploadsServed[k] = v
	}
	firstP2PMs := a.firstP2PTransferMs
	haveFirstP2P := a.haveFirstP2P
	a.mu.Unlock()

	s := Summary{LatencyByNodeType: make(map[string]NodeTypeMetrics, 2)}

	var allLatencies, networkLatencies []float64
	byClass := map[string][]float64{"anchor": nil, "transient": nil}
	countByClass := map[string]int{"anchor": 0, "transient": 0}
	peerLatencies := make(map[string][]float64)

	for _, r := range requests {
		s.TotalRequests++
		allLatencies = append(allLatencies, r.LatencyMs)
		peerLatencies[r.PeerID] = append(peerLatencies[r.PeerID], r.LatencyMs)

		switch r.Source {
		case SourceLocalCache:
			s.LocalCacheHits++
		case SourcePeerCache:
			s.PeerRequests++
			networkLatencies = append(networkLatencies, r.LatencyMs)
		case SourceOrigin:
			s.OriginRequests++
			networkLatencies = append(networkLatencies, r.LatencyMs)
		}

		class := "transient"
		if r.IsAnchor {
			class = "anchor"
		}
		byClass[class] = append(byClass[class], r.LatencyMs)
		countByClass[class]++
	}
	s.NetworkRequests = s.PeerRequests + s.OriginRequests

	if s.TotalRequests > 0 {
		s.CacheHitRatio = float64(s.PeerRequests+s.LocalCacheHits) / float64(s.TotalRequests) * 100
		s.AvgLatency = average(allLatencies)
	}
	if denom := s.PeerRequests + s.OriginRequests; denom > 0 {
		s.NetworkCacheHitRatio = float64(s.PeerRequests) / float64(denom) * 100
	}
	s.BandwidthSaved = s.CacheHitRatio
	s.NetworkAvgLatency = average(networkLatencies)
	s.LatencyPercentiles = computePercentiles(allLatencies)

	for _, class := range []string{"anchor", "transient"} {
		vals := byClass[class]
		p := computePercentiles(vals)
		s.LatencyByNodeType[class] = NodeTypeMetrics{
			AvgLatency:   average(vals),
			P5:           p.P5,
			P50:          p.P50,
			P95:          p.P95,
			P99:          p.P99,
			RequestCount: countByClass[class],
		}
	}

	s.JainFairnessIndex = jainFairness(uploadsServed)
	s.WorstCase = worstCase(s.LatencyPercentiles.P99, peerLatencies, requests)
	s.Propagation = propagation(input, firstP2PMs, haveFirstP2P, s.OriginRequests)

	return s
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// jainFairness implements spec §4.7/GLOSSARY: (Σx)²/(n·Σx²), 0 when the
// numerator is 0.
func jainFairness(uploadsServed map[string]int) float64 {
	if len(uploadsServed) == 0 {
		return 0
	}
	var sum, sumSquares float64
	for _, u := range uploadsServed {
		x := float64(u)
		sum += x
		sumSquares += x * x
	}
	if sum == 0 || sumSquares == 0 {
		return 0
	}
	return (sum * sum) / (float64(len(uploadsServed)) * sumSquares)
}

func worstCase(overallP99 float64, peerLatencies map[string][]float64, requests []RequestRecord) WorstCaseMetrics {
	meta := make(map[string]RequestRecord)
	for _, r := range requests {
		meta[r.PeerID] = r // last-seen device stats are representative enough for reporting
	}

	worst := WorstPeer{}
	worstP99 := -1.0
	peerIDs := make([]string, 0, len(peerLatencies))
	for id := range peerLatencies {
		peerIDs = append(peerIDs, id)
	}
	sort.Strings(peerIDs) // deterministic tie-break

	for _, id := range peerIDs {
		p := computePercentiles(peerLatencies[id])
		if p.P99 > worstP99 {
			worstP99 = p.P99
			m := meta[id]
			worst = WorstPeer{
				ID:            id,
				LatencyMs:     p.P99,
				BandwidthMbps: m.PeerBandwidthMbps,
				Tier:          m.PeerBandwidthTier,
				IsAnchor:      m.IsAnchor,
				P99Latency:    p.P99,
			}
		}
	}
	return WorstCaseMetrics{P99Latency: overallP99, WorstPerformingPeer: worst}
}

func propagation(input PropagationInput, firstP2PMs int64, haveFirstP2P bool, originRequestsActual int) PropagationMetrics {
	out := PropagationMetrics{}
	if !input.HaveFirstOriginFetch || input.TotalPeers == 0 {
		return out
	}

	times := make([]int64, 0, len(input.PeerFirstHaveMs))
	for _, t := range input.PeerFirstHaveMs {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	milestone := func(fraction float64) *float64 {
		need := int(fraction * float64(input.TotalPeers))
		if need < 1 {
			need = 1
		}
		if need > len(times) {
			return nil
		}
		v := float64(times[need-1]-input.FirstOriginFetchMs) / 1000.0
		return &v
	}
	out.TimeTo50Percent = milestone(0.5)
	out.TimeTo90Percent = milestone(0.9)
	out.TimeTo100Percent = milestone(1.0)

	if len(times) > 0 {
		var sum int64
		for _, t := range times {
			sum += t - input.FirstOriginFetchMs
		}
		avg := float64(sum) / float64(len(times)) / 1000.0
		out.AvgTimeToReceive = &avg

		if last := times[len(times)-1]; last > input.FirstOriginFetchMs {
			rate := float64(len(times)) / (float64(last-input.FirstOriginFetchMs) / 1000.0)
			out.PropagationRate = &rate
		}
	}

	if haveFirstP2P {
		v := float64(firstP2PMs-input.FirstOriginFetchMs) / 1000.0
		out.TimeToFirstP2P = &v
	}

	if input.OriginRequestsExpected > 0 {
		reduction := 1 - float64(originRequestsActual)/float64(input.OriginRequestsExpected)
		out.OriginLoadReduction = &reduction
	}

	return out
}
