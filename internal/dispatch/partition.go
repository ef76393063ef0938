package dispatch

import (
	"math/rand"

	"botswarm/internal/browser"
)

// DefaultMinPerEngine is the floor share handed to each engine even when the
// participant list is small.
const DefaultMinPerEngine = 2

// Partition splits participants into per-engine task batches.
//
// The list is shuffled first so engine assignment does not correlate with
// input order (callers often append participants in country-grouped blocks).
// Each engine then receives a contiguous window of share = max(floor,
// N/len(kinds)) participants, in browser.Kinds() enumeration order, and every
// window is cut into pairs; a trailing odd participant forms a batch of one.
//
// Participants beyond len(kinds)*share do not fit any window and are returned
// as dropped. Callers must account for them (the service synthesizes
// not-dispatched outcomes) rather than letting them vanish.
func Partition(parts []Participant, m Meeting, joinToken string, minPerEngine int, rng *rand.Rand) (tasks []Task, dropped []Participant) {
	if len(parts) == 0 {
		return nil, nil
	}
	if minPerEngine <= 0 {
		minPerEngine = DefaultMinPerEngine
	}

	shuffled := make([]Participant, len(parts))
	copy(shuffled, parts)
	swap := func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] }
	if rng != nil {
		rng.Shuffle(len(shuffled), swap)
	} else {
		rand.Shuffle(len(shuffled), swap)
	}

	kinds := browser.Kinds()
	share := len(shuffled) / len(kinds)
	if share < minPerEngine {
		share = minPerEngine
	}

	for i, kind := range kinds {
		lo := i * share
		if lo >= len(shuffled) {
			break
		}
		hi := lo + share
		if hi > len(shuffled) {
			hi = len(shuffled)
		}
		window := shuffled[lo:hi]

		for j := 0; j < len(window); j += 2 {
			end := j + 2
			if end > len(window) {
				end = len(window)
			}
			batch := make([]Participant, end-j)
			copy(batch, window[j:end])
			tasks = append(tasks, Task{
				Participants: batch,
				Meeting:      m,
				JoinToken:    joinToken,
				Engine:       kind,
			})
		}
	}

	if rest := len(kinds) * share; rest < len(shuffled) {
		dropped = append(dropped, shuffled[rest:]...)
	}
	return tasks, dropped
}
