package ledger

import (
	"vidgen/internal/model"
)

// Recorder turns a completed snapshot into a ledger entry.
type Recorder struct {
	Ledger *Ledger
	Locate func(model.JobID) string
}

func (r Recorder) RecordCompletion(id model.JobID, snap model.Snapshot) (model.LedgerEntry, error) {
	entry := model.LedgerEntry{
		ID:       id,
		Status:   snap.Status,
		Progress: snap.Progress,
	}
	if r.Locate != nil {
		entry.URL = r.Locate(id)
	}
	return r.Ledger.Upsert(entry)
}
