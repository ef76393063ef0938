package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "botswarm/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := st.AppendRecord(ctx, Record{
			MeetingID:  "meeting-1",
			Total:      8,
			Successes:  8 - i,
			EngineJSON: `{"chromium":{"total":8}}`,
		})
		if err != nil {
			t.Fatalf("AppendRecord: %v", err)
		}
	}

	recs, err := st.RecentRecords(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	// Newest first.
	if recs[0].Successes != 6 || recs[1].Successes != 7 {
		t.Fatalf("unexpected ordering: %+v", recs)
	}
	if recs[0].MeetingID != "meeting-1" || recs[0].At.IsZero() {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
}
