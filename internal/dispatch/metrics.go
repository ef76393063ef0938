package dispatch

import "time"

// Metrics receives dispatch lifecycle signals. The prometheus exporter in
// internal/metrics implements it; NopMetrics is used when metrics are
// disabled.
type Metrics interface {
	RequestStarted()
	OutcomeRecorded(engine string, success bool)
	WaveFinished(took time.Duration)
	UnitStarted()
	UnitFinished()
}

type NopMetrics struct{}

func (NopMetrics) RequestStarted()                     {}
func (NopMetrics) OutcomeRecorded(string, bool)        {}
func (NopMetrics) WaveFinished(time.Duration)          {}
func (NopMetrics) UnitStarted()                        {}
func (NopMetrics) UnitFinished()                       {}
