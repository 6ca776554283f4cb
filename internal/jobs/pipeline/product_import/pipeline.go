package product_import

import (
	"fmt"
	"time"

	"github.com/cataloghq/catalog-backend/internal/importer"
	jobrt "github.com/cataloghq/catalog-backend/internal/jobs/runtime"
	"github.com/cataloghq/catalog-backend/internal/services"
	"github.com/cataloghq/catalog-backend/internal/types"
)

// checkpointEvery is the row interval between counter flushes to the job row.
const checkpointEvery = 100

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	jc.Started()

	source, err := p.sources.GetByID(jc.Ctx, nil, jc.Job.SourceID)
	if err != nil {
		p.failJob(jc, "validate", fmt.Errorf("load source: %w", err))
		return nil
	}
	if source == nil {
		p.failJob(jc, "validate", fmt.Errorf("import source %s not found", jc.Job.SourceID))
		return nil
	}
	if !source.Enabled {
		p.failJob(jc, "validate", fmt.Errorf("import source %q is disabled", source.Name))
		return nil
	}

	jc.Progress("fetch")
	rows, err := p.fetcher.FetchRows(jc.Ctx, source, jc.Job)
	if err != nil {
		p.failJob(jc, "fetch", err)
		p.recordImport(jc, source, 0, err.Error())
		return nil
	}

	// The max batch size check is a hard stop: no row is processed if the feed
	// blows the configured ceiling for this source.
	total := len(rows)
	if source.MaxBatchSize > 0 && total > source.MaxBatchSize {
		p.failJob(jc, "validate", fmt.Errorf("feed has %d rows, exceeding max batch size %d for source %q", total, source.MaxBatchSize, source.Name))
		return nil
	}
	if source.WarnBatchSize > 0 && total > source.WarnBatchSize {
		p.log.Warn("Feed is larger than the warn threshold",
			"job_id", jc.Job.ID, "source", source.Name, "rows", total, "warn_batch_size", source.WarnBatchSize)
	}

	jc.Progress("rows")
	counters := jobrt.Counters{TotalRows: total}
	var rowErrors []types.ImportRowError
	var syncCodes []string

	for i, raw := range rows {
		if ctxErr := jc.Ctx.Err(); ctxErr != nil {
			interrupted := fmt.Errorf("import interrupted: %w", ctxErr)
			// The row-0 entry rides along even when the per-row list is at its
			// cap; the interruption itself must always be visible.
			rowErrors = append(rowErrors, types.ImportRowError{Row: 0, Error: interrupted.Error()})
			jc.Fail("rows", interrupted, rowErrors)
			p.recordImport(jc, source, counters.SuccessfulRows, ctxErr.Error())
			return nil
		}

		rowNum := i + 1
		counters.ProcessedRows++
		entityCode, published, rowErr := p.processRow(jc, source, raw)
		if rowErr != nil {
			counters.FailedRows++
			if len(rowErrors) < types.MaxImportErrors {
				rowErrors = append(rowErrors, types.ImportRowError{
					Row:        rowNum,
					EntityCode: entityCode,
					Error:      rowErr.Error(),
					RawData:    raw,
				})
			}
		} else {
			counters.SuccessfulRows++
			if published {
				counters.AutoPublished++
			}
			syncCodes = append(syncCodes, entityCode)
		}

		if counters.ProcessedRows%checkpointEvery == 0 {
			jc.Checkpoint(counters, rowErrors)
		}
	}

	jc.Progress("finalize")
	jc.Complete(counters, rowErrors)
	p.recordImport(jc, source, counters.SuccessfulRows, "")

	if len(syncCodes) > 0 {
		if err := p.search.EnqueueEntitySync(jc.Ctx, syncCodes); err != nil {
			p.log.Warn("Search sync enqueue failed", "job_id", jc.Job.ID, "entities", len(syncCodes), "error", err)
		}
	}
	return nil
}

// processRow runs one record through the full mapping, conflict, scoring and
// publish pipeline and appends a version. A returned error fails only this
// row; the import carries on.
func (p *Pipeline) processRow(jc *jobrt.Context, source *types.ImportSource, raw map[string]any) (entityCode string, published bool, err error) {
	mapped, err := p.mapper.MapRow(raw, source)
	if err != nil {
		return "", false, err
	}
	if mapped.EntityCode == "" {
		return "", false, fmt.Errorf("row has no entity code")
	}
	entityCode = mapped.EntityCode

	prior, err := p.versions.GetCurrent(jc.Ctx, nil, entityCode)
	if err != nil {
		return entityCode, false, fmt.Errorf("load current version: %w", err)
	}

	conflicts, err := importer.DetectConflicts(prior, mapped.Data, source.OverwriteLevel, time.Now())
	if err != nil {
		return entityCode, false, fmt.Errorf("detect conflicts: %w", err)
	}
	if err := importer.ApplyLockedFields(prior, conflicts.MergedData); err != nil {
		return entityCode, false, fmt.Errorf("apply locked fields: %w", err)
	}

	data := conflicts.MergedData
	score := importer.Score(data)
	issues := importer.CriticalIssues(data)
	decision := importer.EvaluateAutoPublish(source, prior, data, score)

	_, err = p.writer.Write(jc.Ctx, nil, services.WriteInput{
		EntityCode:  entityCode,
		Data:        data,
		Score:       score,
		Issues:      issues,
		HasConflict: conflicts.HasConflicts,
		Conflicts:   conflicts.Conflicts,
		Decision:    decision,
		Source:      source,
		BatchID:     jc.Job.BatchID,
	})
	if err != nil {
		return entityCode, false, fmt.Errorf("write version: %w", err)
	}
	return entityCode, decision.Eligible, nil
}

// failJob records a job-level failure with the conventional row-0 error entry.
func (p *Pipeline) failJob(jc *jobrt.Context, stage string, err error) {
	jc.Fail(stage, err, []types.ImportRowError{{Row: 0, Error: err.Error()}})
}

func (p *Pipeline) recordImport(jc *jobrt.Context, source *types.ImportSource, rowsImported int, lastError string) {
	if source == nil {
		return
	}
	if err := p.sources.RecordImport(jc.Ctx, nil, source.ID, rowsImported, lastError); err != nil {
		p.log.Warn("RecordImport failed", "job_id", jc.Job.ID, "source", source.Name, "error", err)
	}
}
