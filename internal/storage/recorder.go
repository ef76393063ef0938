package storage

import (
	"context"
	"encoding/json"
	"time"

	"botswarm/internal/dispatch"
)

// HistoryRecorder adapts a Store to the dispatch pipeline's persistence
// hook.
type HistoryRecorder struct {
	store Store
}

func NewHistoryRecorder(store Store) *HistoryRecorder {
	return &HistoryRecorder{store: store}
}

func (h *HistoryRecorder) AppendDispatch(ctx context.Context, meetingID string, rep dispatch.Report) error {
	if h == nil || h.store == nil {
		return nil
	}
	engines, err := json.Marshal(rep.PerEngine)
	if err != nil {
		return err
	}
	failures, err := json.Marshal(rep.Failures)
	if err != nil {
		return err
	}
	return h.store.AppendRecord(ctx, Record{
		At:           time.Now(),
		MeetingID:    meetingID,
		Total:        rep.Total,
		Successes:    rep.Successes,
		EngineJSON:   string(engines),
		FailuresJSON: string(failures),
	})
}
