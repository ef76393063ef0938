package dispatch

import (
	"math/rand"
	"testing"

	"botswarm/internal/browser"
)

func makeParticipants(n int) []Participant {
	parts := make([]Participant, n)
	for i := range parts {
		parts[i] = Participant{ID: i + 1, DisplayName: botName(i + 1), Status: StatusReady}
	}
	return parts
}

func testMeeting() Meeting {
	return Meeting{ID: "831-555-0100", Password: "hunter2", Origin: "https://meet.example.com"}
}

func TestPartitionBalancedShares(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(1))
	tasks, dropped := Partition(makeParticipants(30), testMeeting(), "tok", 2, rng)

	if len(dropped) != 0 {
		t.Fatalf("dropped = %d, want 0", len(dropped))
	}
	perEngine := map[browser.Kind]int{}
	for _, task := range tasks {
		perEngine[task.Engine] += len(task.Participants)
	}
	for _, k := range browser.Kinds() {
		if perEngine[k] != 10 {
			t.Fatalf("engine %s got %d participants, want 10", k, perEngine[k])
		}
	}
}

func TestPartitionTaskInvariants(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 5, 6, 7, 30, 200} {
		tasks, dropped := Partition(makeParticipants(n), testMeeting(), "tok", 2, rand.New(rand.NewSource(7)))
		seen := map[int]bool{}
		total := 0
		for _, task := range tasks {
			if len(task.Participants) < 1 || len(task.Participants) > 2 {
				t.Fatalf("n=%d: task with %d participants", n, len(task.Participants))
			}
			if task.JoinToken == "" {
				t.Fatalf("n=%d: task without token", n)
			}
			for _, p := range task.Participants {
				if seen[p.ID] {
					t.Fatalf("n=%d: participant %d dispatched twice", n, p.ID)
				}
				seen[p.ID] = true
			}
			total += len(task.Participants)
		}
		for _, p := range dropped {
			if seen[p.ID] {
				t.Fatalf("n=%d: participant %d both dispatched and dropped", n, p.ID)
			}
			seen[p.ID] = true
		}
		if total+len(dropped) != n {
			t.Fatalf("n=%d: dispatched %d + dropped %d != %d", n, total, len(dropped), n)
		}
	}
}

func TestPartitionPairing(t *testing.T) {
	t.Parallel()
	// share = max(2, 15/3) = 5 per engine, so each engine gets batches of
	// sizes 2, 2, 1.
	tasks, _ := Partition(makeParticipants(15), testMeeting(), "tok", 2, rand.New(rand.NewSource(3)))
	sizes := map[browser.Kind][]int{}
	for _, task := range tasks {
		sizes[task.Engine] = append(sizes[task.Engine], len(task.Participants))
	}
	for _, k := range browser.Kinds() {
		got := sizes[k]
		if len(got) != 3 || got[0] != 2 || got[1] != 2 || got[2] != 1 {
			t.Fatalf("engine %s batch sizes = %v, want [2 2 1]", k, got)
		}
	}
}

func TestPartitionDropBoundary(t *testing.T) {
	t.Parallel()
	// N=7, F=2: share = max(2, 2) = 2, six participants dispatched, one
	// beyond 3*share is left over.
	tasks, dropped := Partition(makeParticipants(7), testMeeting(), "tok", 2, rand.New(rand.NewSource(5)))
	total := 0
	for _, task := range tasks {
		total += len(task.Participants)
	}
	if total != 6 {
		t.Fatalf("dispatched %d participants, want 6", total)
	}
	if len(dropped) != 1 {
		t.Fatalf("dropped = %d, want 1", len(dropped))
	}
}

func TestPartitionSmallListFloor(t *testing.T) {
	t.Parallel()
	// With fewer participants than the floor allows, windows clamp to the
	// list and later engines may get nothing.
	tasks, dropped := Partition(makeParticipants(3), testMeeting(), "tok", 2, rand.New(rand.NewSource(11)))
	total := 0
	for _, task := range tasks {
		total += len(task.Participants)
	}
	if total != 3 || len(dropped) != 0 {
		t.Fatalf("dispatched %d dropped %d, want 3 and 0", total, len(dropped))
	}
}
