package build

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/starford/postlock/internal/journal"
	"github.com/starford/postlock/internal/models"
)

// Report summarises a build run.
type Report struct {
	RunID      string              `json:"run_id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Processed  int                 `json:"processed"`
	Locked     int                 `json:"locked"`
	Unchanged  int                 `json:"unchanged"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	Links      int                 `json:"links"`
	Images     int                 `json:"images"`
	Results    []models.FileResult `json:"results"`

	mu sync.Mutex
}

func (r *Report) add(res models.FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Processed++
	r.Links += res.Links
	switch res.Outcome {
	case models.OutcomeLocked:
		r.Locked++
	case models.OutcomeUnchanged:
		r.Unchanged++
	case models.OutcomeSkipped:
		r.Skipped++
	case models.OutcomeFailed:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// finish sorts results by path and stamps the finish time.
func (r *Report) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(r.Results, func(i, j int) bool { return r.Results[i].Path < r.Results[j].Path })
	r.FinishedAt = time.Now()
}

// Failures returns the failed file results.
func (r *Report) Failures() []models.FileResult {
	var out []models.FileResult
	for _, res := range r.Results {
		if res.Outcome == models.OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}

// Err joins every per-file failure into one error, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s: %s", f.Path, f.Error))
	}
	return errors.Join(errs...)
}

// runRow converts the report into its journal representation.
func (r *Report) runRow() journal.RunRow {
	finished := r.FinishedAt
	return journal.RunRow{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: &finished,
		Processed:  r.Processed,
		Locked:     r.Locked,
		Unchanged:  r.Unchanged,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Links:      r.Links,
		Images:     r.Images,
	}
}
