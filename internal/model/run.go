package model

import (
	"time"
)

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records the inputs and settings an analysis run used.
type RunParams struct {
	Name       string             `json:"name"`
	UnitsPath  string             `json:"units_path"`
	SupplyPath string             `json:"supply_path,omitempty"`
	POIPath    string             `json:"poi_path,omitempty"`
	Categories []string           `json:"categories"`
	Threshold  float64            `json:"threshold"`
	Metric     string             `json:"metric"`
	Kernel     string             `json:"kernel"`
	Profile    map[string]float64 `json:"profile,omitempty"`
}

// Run represents a single accessibility analysis run.
type Run struct {
	ID        string      `json:"id"`
	Params    RunParams   `json:"params"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds the final outcome of a run.
type RunSummary struct {
	Units      int               `json:"units"`
	Categories []CategorySummary `json:"categories"`
	Degenerate []DegenerateRatio `json:"degenerate,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

// CategorySummary describes one category column of a run.
type CategorySummary struct {
	Category    string  `json:"category"`
	TotalSupply float64 `json:"total_supply"`
	SupplyUnits int     `json:"supply_units"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
}

// Score is a single accessibility cell of a run. Value is nil when the cell
// is a degenerate sentinel.
type Score struct {
	RunID      string   `json:"run_id"`
	UnitID     string   `json:"unit_id"`
	Category   string   `json:"category"`
	Value      *float64 `json:"value"`
	Degenerate bool     `json:"degenerate"`
}
