package bridge

// adaptiveConfirmation implements spec §4.3's adaptive-confirmation formula:
// high-value transfers wait for maxConf; everything else scales linearly
// between minConf and maxConf by amount/highValueThreshold, clamped to the
// configured band. Invariant P1: the result is always in [minConf, maxConf]
// and non-decreasing in amount.
func adaptiveConfirmation(amount uint64, minConf, maxConf int, threshold uint64) int {
	if minConf > maxConf {
		minConf, maxConf = maxConf, minConf
	}
	if threshold == 0 || amount >= threshold {
		return maxConf
	}
	frac := float64(amount) / float64(threshold)
	conf := int(float64(minConf) + frac*float64(maxConf-minConf))
	if conf < minConf {
		conf = minConf
	}
	if conf > maxConf {
		conf = maxConf
	}
	return conf
}
