// Package store persists analysis runs, their accessibility scores and the
// spatial units they were computed over.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/access-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Name   string          `json:"name,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// ScoreFilter narrows GetScores.
type ScoreFilter struct {
	Category string `json:"category,omitempty"`
	UnitID   string `json:"unit_id,omitempty"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Scores
	SaveScores(ctx context.Context, runID string, scores []model.Score) (int64, error)
	GetScores(ctx context.Context, runID string, filter ScoreFilter) ([]model.Score, error)

	// Units
	SaveUnits(ctx context.Context, units []model.SpatialUnit) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func marshalParams(p model.RunParams) ([]byte, error) {
	b, err := json.Marshal(p)
	return b, eris.Wrap(err, "store: marshal params")
}

func decodeRun(r *model.Run, params []byte, summary []byte) error {
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return eris.Wrap(err, "store: unmarshal params")
	}
	if len(summary) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return eris.Wrap(err, "store: unmarshal summary")
		}
	}
	return nil
}
