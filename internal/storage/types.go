package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures dispatch-history persistence.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Record is one finished dispatch run.
// Keep it compact and schema-stable.
type Record struct {
	At        time.Time
	MeetingID string
	Total     int
	Successes int
	// EngineJSON and FailuresJSON hold the per-engine stats and failure
	// outcomes as serialized JSON, so the schema survives report changes.
	EngineJSON   string
	FailuresJSON string
}
