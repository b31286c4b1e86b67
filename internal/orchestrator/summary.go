package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/tphakala/foresight-go/internal/datastore"
)

// EntityResult is the recorded outcome of one tag within a run.
type EntityResult struct {
	Tag      string        `json:"tag"`
	Outcome  string        `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	MAE      float64       `json:"mae,omitempty"`
	Version  int           `json:"version,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Summary aggregates one orchestration pass for the audit log and the run
// registry. Workers append entity results concurrently; the counters are
// computed once in finalize.
type Summary struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Attempted   int            `json:"attempted"`
	Succeeded   int            `json:"succeeded"`
	Promoted    int            `json:"promoted"`
	Kept        int            `json:"kept"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	Aborted     bool           `json:"aborted,omitempty"`
	AbortReason string         `json:"abort_reason,omitempty"`
	Entities    []EntityResult `json:"entities"`

	mu sync.Mutex
}

func newSummary(runID string) *Summary {
	return &Summary{RunID: runID, StartedAt: time.Now()}
}

// add records one entity outcome; safe for concurrent workers.
func (s *Summary) add(r EntityResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Entities = append(s.Entities, r)
}

// finalize stamps the end time and computes the aggregate counters. Entities
// are sorted by tag so two runs over identical data produce identical
// summaries regardless of worker interleaving.
func (s *Summary) finalize() {
	s.FinishedAt = time.Now()
	sort.Slice(s.Entities, func(i, j int) bool { return s.Entities[i].Tag < s.Entities[j].Tag })
	s.Attempted = len(s.Entities)
	s.Succeeded, s.Promoted, s.Kept, s.Skipped, s.Failed = 0, 0, 0, 0, 0
	for i := range s.Entities {
		switch s.Entities[i].Outcome {
		case datastore.OutcomePromoted:
			s.Promoted++
			s.Succeeded++
		case datastore.OutcomeKept:
			s.Kept++
			s.Succeeded++
		case datastore.OutcomeSkipped:
			s.Skipped++
		case datastore.OutcomeFailed:
			s.Failed++
		}
	}
}

// Duration is the wall-clock length of the pass.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Record converts the summary into its persistent form.
func (s *Summary) Record() *datastore.RunRecord {
	entities := make([]datastore.RunEntityRecord, 0, len(s.Entities))
	for _, e := range s.Entities {
		entities = append(entities, datastore.RunEntityRecord{
			Tag:      e.Tag,
			Outcome:  e.Outcome,
			Reason:   e.Reason,
			Kind:     e.Kind,
			MAE:      e.MAE,
			Version:  e.Version,
			Duration: e.Duration,
		})
	}
	return &datastore.RunRecord{
		RunID:       s.RunID,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		Attempted:   s.Attempted,
		Succeeded:   s.Succeeded,
		Promoted:    s.Promoted,
		Skipped:     s.Skipped,
		Failed:      s.Failed,
		Aborted:     s.Aborted,
		AbortReason: s.AbortReason,
		Entities:    entities,
	}
}

// logAttrs renders the summary as slog attributes for the audit sink.
func (s *Summary) logAttrs() []any {
	return []any{
		"run_id", s.RunID,
		"started_at", s.StartedAt.Format(time.RFC3339),
		"finished_at", s.FinishedAt.Format(time.RFC3339),
		"attempted", s.Attempted,
		"succeeded", s.Succeeded,
		"promoted", s.Promoted,
		"kept", s.Kept,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"aborted", s.Aborted,
		"abort_reason", s.AbortReason,
		"entities", s.Entities,
	}
}
