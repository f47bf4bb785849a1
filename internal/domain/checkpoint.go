package domain

import "time"

// DateFailure records a date whose features could not be built.
type DateFailure struct {
	Date       time.Time `json:"date"`
	Stage      string    `json:"stage,omitempty"`
	Window     Window    `json:"window"`
	Error      string    `json:"error"`
	Attempts   int       `json:"attempts"`
	RunID      string    `json:"run_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Checkpoint is the persisted progress of a run: completed records and the
// latest failure per date, both keyed by YYYY-MM-DD.
type Checkpoint struct {
	Records  map[string]DailyFeatureRecord
	Failures map[string]DateFailure
}

// NewCheckpoint returns an empty checkpoint.
func NewCheckpoint() Checkpoint {
	return Checkpoint{
		Records:  make(map[string]DailyFeatureRecord),
		Failures: make(map[string]DateFailure),
	}
}

// Apply folds a completed record into the checkpoint, clearing any earlier
// failure for the same date.
func (c Checkpoint) Apply(rec DailyFeatureRecord) {
	key := rec.DateKey()
	c.Records[key] = rec
	delete(c.Failures, key)
}

// ApplyFailure records a failure unless the date already completed.
func (c Checkpoint) ApplyFailure(f DateFailure) {
	key := f.Date.UTC().Format(DateLayout)
	if _, done := c.Records[key]; done {
		return
	}
	c.Failures[key] = f
}
