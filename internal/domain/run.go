package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal signal a pipeline run reports to its scheduler.
type RunStatus string

const (
	// RunSucceeded covers clean runs, including runs that found no new data.
	RunSucceeded RunStatus = "succeeded"
	// RunWarning means data was committed but something needs attention:
	// skipped partitions or a failed quality report.
	RunWarning RunStatus = "warning"
	// RunFailed means the run could not complete (storage or warehouse
	// unreachable, or every partition failed).
	RunFailed RunStatus = "failed"
)

// PartitionOutcome records what happened to one company's partition in a run.
type PartitionOutcome struct {
	Partition string `json:"partition"`
	Fetched   int    `json:"fetched"`
	Loaded    int    `json:"loaded"`
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
}

// RunLogEntry is the per-run row persisted to the ingestion_runs table.
type RunLogEntry struct {
	RunID             uuid.UUID `json:"run_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Status            RunStatus `json:"status"`
	PartitionsLoaded  int       `json:"partitions_loaded"`
	PartitionsSkipped int       `json:"partitions_skipped"`
	RowsLoaded        int       `json:"rows_loaded"`
	Detail            string    `json:"detail,omitempty"`
}
