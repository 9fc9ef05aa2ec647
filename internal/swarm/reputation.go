package swarm

// ReputationWeights is the fixed, seven-factor struct spec §9 calls for:
// the source has a 3-weight browser shape and a 7-weight server shape,
// unified here by setting unused factors' weight (and the corresponding
// counters) to zero so one formula covers both. Bandwidth and uptime are
// used unnormalized, matching the source — this is deliberate, not a
// rounding bug (spec §9 Open Question).
type ReputationWeights struct {
	Success        float64 // per successfulUploads
	Bandwidth      float64 // per bandwidthMbps, raw units
	Uptime         float64 // per uptimeSec, raw units
	Integrity      float64 // per integrityVerifications
	FailedTransfer float64 // per failedTransfers (negative weight penalizes)
	Storage        float64 // per storageMB
	Battery        float64 // per batteryPct
}

// BrowserWeights matches the 3-weight in-memory/browser model: all
// factors it uses default to 1.0, everything else is zero.
func BrowserWeights() ReputationWeights {
	return ReputationWeights{Success: 1, Bandwidth: 1, Uptime: 1}
}

// ServerWeights matches the extended server-facing model: it also
// accounts for integrity verifications, failed transfers (penalized),
// storage capacity and battery level.
func ServerWeights() ReputationWeights {
	return ReputationWeights{
		Success:        1,
		Bandwidth:      1,
		Uptime:         1,
		Integrity:      0.5,
		FailedTransfer: -2,
		Storage:        0.01,
		Battery:        0.1,
	}
}

// score evaluates the weighted reputation formula over the given factor
// values (spec §4.1: a*nSuccess + b*bandwidthMbps + c*uptimeSec [+...]).
func (w ReputationWeights) score(successfulUploads, integrityVerifications, failedTransfers int, bandwidthMbps, uptimeSec, storageMB, batteryPct float64) float64 {
	return w.Success*float64(successfulUploads) +
		w.Bandwidth*bandwidthMbps +
		w.Uptime*uptimeSec +
		w.Integrity*float64(integrityVerifications) +
		w.FailedTransfer*float64(failedTransfers) +
		w.Storage*storageMB +
		w.Battery*batteryPct
}
