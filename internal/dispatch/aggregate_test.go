package dispatch

import (
	"reflect"
	"testing"

	"botswarm/internal/browser"
)

func TestAggregate(t *testing.T) {
	t.Parallel()
	outcomes := []Outcome{
		{ParticipantID: 1, Success: true, Engine: browser.KindChromium},
		{ParticipantID: 2, Success: false, Engine: browser.KindChromium, Reason: ReasonJoinError},
		{ParticipantID: 3, Success: true, Engine: browser.KindFirefox},
	}
	rep := Aggregate(outcomes, 3)

	if rep.Total != 3 || rep.Successes != 2 {
		t.Fatalf("total/successes = %d/%d, want 3/2", rep.Total, rep.Successes)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].ParticipantID != 2 {
		t.Fatalf("unexpected failures: %+v", rep.Failures)
	}
	want := map[browser.Kind]EngineStats{
		browser.KindChromium: {Total: 2, Successes: 1},
		browser.KindFirefox:  {Total: 1, Successes: 1},
		browser.KindWebkit:   {},
	}
	if !reflect.DeepEqual(rep.PerEngine, want) {
		t.Fatalf("per-engine stats = %v, want %v", rep.PerEngine, want)
	}
	if rep.AllJoined() {
		t.Fatal("AllJoined() = true with a failure present")
	}
}

func TestAggregateIsPure(t *testing.T) {
	t.Parallel()
	outcomes := []Outcome{
		{ParticipantID: 1, Success: true, Engine: browser.KindWebkit},
	}
	a := Aggregate(outcomes, 1)
	b := Aggregate(outcomes, 1)
	if !reflect.DeepEqual(a.PerEngine, b.PerEngine) || a.Successes != b.Successes {
		t.Fatal("repeated aggregation differs")
	}
	if !a.AllJoined() {
		t.Fatal("AllJoined() = false, want true")
	}
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()
	rep := Aggregate(nil, 0)
	if rep.Total != 0 || rep.Successes != 0 || len(rep.Failures) != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(rep.PerEngine) != len(browser.Kinds()) {
		t.Fatalf("per-engine rows = %d, want %d", len(rep.PerEngine), len(browser.Kinds()))
	}
}
