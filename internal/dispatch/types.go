package dispatch

import (
	"fmt"

	"botswarm/internal/browser"
)

// Status tracks a participant through its join lifecycle.
type Status int

const (
	StatusReady Status = iota
	StatusInitializing
	StatusJoining
	StatusConnected
	StatusError
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusInitializing:
		return "initializing"
	case StatusJoining:
		return "joining"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	case StatusDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "ready":
		*s = StatusReady
	case "initializing":
		*s = StatusInitializing
	case "joining":
		*s = StatusJoining
	case "connected":
		*s = StatusConnected
	case "error":
		*s = StatusError
	case "disconnected":
		*s = StatusDisconnected
	default:
		return fmt.Errorf("dispatch: unknown status %q", string(b))
	}
	return nil
}

// CountryMeta is decorative metadata attached to synthetic participants.
type CountryMeta struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Flag string `json:"flag"`
}

// Participant is one bot identity to be joined into the target meeting.
// IDs are unique within a request.
type Participant struct {
	ID          int          `json:"id"`
	DisplayName string       `json:"name"`
	Status      Status       `json:"status,omitempty"`
	Country     *CountryMeta `json:"country,omitempty"`
}

// Meeting carries the join coordinates shared by every task in a request.
type Meeting struct {
	ID       string
	Password string
	Origin   string
}

// Task is the unit of isolated work: one or two participants bound to one
// engine instance. Immutable once created by the partitioner; consumed and
// discarded by exactly one execution unit.
type Task struct {
	Participants []Participant
	Meeting      Meeting
	JoinToken    string
	Engine       browser.Kind
}

// Outcome is the terminal success/failure record for one participant.
// Exactly one outcome per input participant exists across a whole run,
// produced either by the execution unit or synthesized by the scheduler.
type Outcome struct {
	ParticipantID int          `json:"participantId"`
	Success       bool         `json:"success"`
	Engine        browser.Kind `json:"engine"`
	Reason        string       `json:"errorReason,omitempty"`
}

// EngineStats is the per-engine slice of a dispatch report.
type EngineStats struct {
	Total     int `json:"total"`
	Successes int `json:"successes"`
}

// Report summarizes one dispatch run. Derived, ephemeral, pure function of
// the outcome set.
type Report struct {
	Total     int
	Successes int
	PerEngine map[browser.Kind]EngineStats
	Failures  []Outcome
}

// AllJoined reports whether every participant connected.
func (r Report) AllJoined() bool { return r.Successes == r.Total }
