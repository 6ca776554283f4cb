package importer

import (
	"sort"

	"github.com/cataloghq/catalog-backend/internal/types"
)

const (
	BatchStatusIncomplete     = "incomplete"
	BatchStatusInProgress     = "in_progress"
	BatchStatusFailed         = "failed"
	BatchStatusComplete       = "complete"
	BatchStatusPartialSuccess = "partial_success"
)

// BatchStatus is the aggregated read model for one logically-split upload.
type BatchStatus struct {
	BatchID             string             `json:"batch_id"`
	Status              string             `json:"status"`
	ExpectedParts       int                `json:"expected_parts"`
	ReceivedParts       int                `json:"received_parts"`
	MissingParts        []int              `json:"missing_parts"`
	CompletedJobs       int                `json:"completed_jobs"`
	FailedJobs          int                `json:"failed_jobs"`
	InProgressJobs      int                `json:"in_progress_jobs"`
	TotalItemsProcessed int                `json:"total_items_processed"`
	TotalItemsFailed    int                `json:"total_items_failed"`
	IsComplete          bool               `json:"is_complete"`
	Jobs                []*types.ImportJob `json:"jobs"`
}

// TrackBatch derives completion state across the jobs sharing one batch_id.
// Jobs are re-sorted by part number; expected_parts comes from any job that
// declares batch_total_parts.
func TrackBatch(batchID string, jobs []*types.ImportJob) *BatchStatus {
	sorted := append([]*types.ImportJob(nil), jobs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BatchPart < sorted[j].BatchPart })

	st := &BatchStatus{BatchID: batchID, Jobs: sorted}
	if len(sorted) == 0 {
		st.Status = BatchStatusIncomplete
		return st
	}

	seen := map[int]bool{}
	for _, job := range sorted {
		if job.BatchTotalParts > st.ExpectedParts {
			st.ExpectedParts = job.BatchTotalParts
		}
		if job.BatchPart > 0 {
			seen[job.BatchPart] = true
		}
		switch job.Status {
		case types.JobStatusCompleted:
			st.CompletedJobs++
		case types.JobStatusFailed:
			st.FailedJobs++
		default:
			st.InProgressJobs++
		}
		st.TotalItemsProcessed += job.ProcessedRows
		st.TotalItemsFailed += job.FailedRows
	}
	st.ReceivedParts = len(seen)
	for part := 1; part <= st.ExpectedParts; part++ {
		if !seen[part] {
			st.MissingParts = append(st.MissingParts, part)
		}
	}

	allTerminal := st.InProgressJobs == 0 && len(sorted) > 0
	switch {
	case len(st.MissingParts) > 0:
		st.Status = BatchStatusIncomplete
	case !allTerminal:
		st.Status = BatchStatusInProgress
	case st.FailedJobs > 0 && st.CompletedJobs == 0:
		st.Status = BatchStatusFailed
	case st.FailedJobs == 0:
		st.Status = BatchStatusComplete
	default:
		st.Status = BatchStatusPartialSuccess
	}
	st.IsComplete = len(st.MissingParts) == 0 && allTerminal
	return st
}
