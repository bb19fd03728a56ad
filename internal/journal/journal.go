package journal

import (
	"time"

	"github.com/starford/postlock/internal/models"
)

// Recorder is the subset of the journal the build driver writes to.
// Consumers depend on it rather than on *DB so tests can swap in fakes.
type Recorder interface {
	GetChecksum(path string) (string, error)
	RecordFile(runID string, r models.FileResult) error
}

// Verify *DB satisfies Recorder at compile time.
var _ Recorder = (*DB)(nil)

// Store is the full journal surface used by a build: per-file records plus
// run bookkeeping.
type Store interface {
	Recorder
	StartRun(id string, startedAt time.Time) error
	FinishRun(r RunRow) error
}

var _ Store = (*DB)(nil)
