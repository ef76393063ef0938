package dispatch

import "botswarm/internal/browser"

// Aggregate folds a flat outcome list into the summary report. It is a pure
// function of its inputs: calling it twice on the same slice yields equal
// reports. Every engine kind gets a stats row even when no task ran on it.
func Aggregate(outcomes []Outcome, total int) Report {
	rep := Report{
		Total:     total,
		PerEngine: make(map[browser.Kind]EngineStats, len(browser.Kinds())),
		Failures:  []Outcome{},
	}
	for _, k := range browser.Kinds() {
		rep.PerEngine[k] = EngineStats{}
	}
	for _, o := range outcomes {
		st := rep.PerEngine[o.Engine]
		st.Total++
		if o.Success {
			st.Successes++
			rep.Successes++
		} else {
			rep.Failures = append(rep.Failures, o)
		}
		rep.PerEngine[o.Engine] = st
	}
	return rep
}
