package simulation

import "github.com/swarmsim/swarmsim/internal/metrics"

// Results is the driver's output (spec §6 SimulationResults): every
// numeric field is finite, with undefined values represented as an
// explicit nil pointer rather than NaN.
type Results struct {
	// counters
	TotalRequests   int
	PeerRequests    int
	OriginRequests  int
	LocalCacheHits  int
	NetworkRequests int

	// ratios
	CacheHitRatio        float64
	NetworkCacheHitRatio float64
	BandwidthSaved       float64

	// latency
	AvgLatency         float64
	NetworkAvgLatency  float64
	LatencyImprovement float64

	// distribution
	LatencyPercentiles metrics.Percentiles
	LatencyByNodeType   map[string]metrics.NodeTypeMetrics

	// worst-case
	WorstCaseMetrics metrics.WorstCaseMetrics

	// fairness
	JainFairnessIndex float64

	// propagation
	FilePropagationTime *float64
	PropagationMetrics  metrics.PropagationMetrics

	// churn
	RecoverySpeed *float64

	// logs
	PeerJoinEvents     []metrics.PeerJoinEvent
	FileTransferEvents []metrics.FileTransferEvent
	AnchorNodes        []string
	AllRequestMetrics  []metrics.RequestRecord

	// context
	PeersSimulated int
	Duration       float64
	ChurnEvents    *int
}

// buildResults assembles Results from a computed Summary plus the extra
// driver-owned context (join/transfer logs, anchor roster, churn count,
// recovery speed) spec §6 doesn't derive from the flat request stream
// alone.
func buildResults(summary metrics.Summary, joins []metrics.PeerJoinEvent, transfers []metrics.FileTransferEvent,
	anchors []string, requests []metrics.RequestRecord, peersSimulated int, durationSec float64,
	churnEvents int, recoverySpeedMs *float64) Results {

	r := Results{
		TotalRequests:        summary.TotalRequests,
		PeerRequests:         summary.PeerRequests,
		OriginRequests:       summary.OriginRequests,
		LocalCacheHits:       summary.LocalCacheHits,
		NetworkRequests:      summary.NetworkRequests,
		CacheHitRatio:        summary.CacheHitRatio,
		NetworkCacheHitRatio: summary.NetworkCacheHitRatio,
		BandwidthSaved:       summary.BandwidthSaved,
		AvgLatency:           summary.AvgLatency,
		NetworkAvgLatency:    summary.NetworkAvgLatency,
		LatencyPercentiles:   summary.LatencyPercentiles,
		LatencyByNodeType:    summary.LatencyByNodeType,
		WorstCaseMetrics:     summary.WorstCase,
		JainFairnessIndex:    summary.JainFairnessIndex,
		PropagationMetrics:   summary.Propagation,
		PeerJoinEvents:       joins,
		FileTransferEvents:   transfers,
		AnchorNodes:          anchors,
		AllRequestMetrics:    requests,
		PeersSimulated:       peersSimulated,
		Duration:             durationSec,
		RecoverySpeed:        recoverySpeedMs,
	}
	if joins == nil {
		r.PeerJoinEvents = []metrics.PeerJoinEvent{}
	}
	if transfers == nil {
		r.FileTransferEvents = []metrics.FileTransferEvent{}
	}
	if anchors == nil {
		r.AnchorNodes = []string{}
	}
	if requests == nil {
		r.AllRequestMetrics = []metrics.RequestRecord{}
	}
	if churnEvents > 0 {
		n := churnEvents
		r.ChurnEvents = &n
	}

	r.LatencyImprovement = latencyImprovement(summary, requests)
	r.FilePropagationTime = filePropagationTime(summary.Propagation)

	return r
}

// latencyImprovement compares the overall average latency against the
// average latency of requests that had to fall back to origin — the
// baseline a request would have paid without any caching available
// (spec §9's unnormalized-formula convention: no further scaling).
func latencyImprovement(s metrics.Summary, requests []metrics.RequestRecord) float64 {
	var sum float64
	var count int
	for _, r := range requests {
		if r.Source == metrics.SourceOrigin {
			sum += r.LatencyMs
			count++
		}
	}
	if count == 0 {
		return 0
	}
	originAvg := sum / float64(count)
	if originAvg == 0 {
		return 0
	}
	return (originAvg - s.AvgLatency) / originAvg * 100
}

func filePropagationTime(p metrics.PropagationMetrics) *float64 {
	if p.TimeTo100Percent != nil {
		return p.TimeTo100Percent
	}
	return p.TimeTo90Percent
}
