package portalguard

import "time"

func (g *Guard) metricInc(id MetricID) {
	if g == nil || g.metrics == nil {
		return
	}
	g.metrics.Inc(id)
}

func (g *Guard) observeLatency(start time.Time) {
	if g == nil || !g.metrics.LatencyEnabled() {
		return
	}
	g.metrics.Observe(MetricCheckLatency, time.Since(start))
}

func outcomeMetric(o Outcome) MetricID {
	switch o {
	case OutcomeAuthorized:
		return MetricCheckAuthorized
	case OutcomeForbidden:
		return MetricCheckForbidden
	case OutcomeUnauthenticated:
		return MetricCheckUnauthenticated
	case OutcomeError:
		return MetricCheckError
	default:
		return MetricCheckPending
	}
}
