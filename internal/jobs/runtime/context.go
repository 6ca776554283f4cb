package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cataloghq/catalog-backend/internal/repos"
	"github.com/cataloghq/catalog-backend/internal/services"
	"github.com/cataloghq/catalog-backend/internal/types"
)

/*
The execution contract between the job system and all pipeline code.
runtime.Context is a capability-scoped execution handle for a single claimed
import job. It wraps:
	- The database handle,
	- The mutable import_job row,
	- The notification side-effects,
	- And the only sanctioned ways to report progress or terminate execution
Pipelines never write import_job directly. They go through this object.
*/

type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.ImportJob
	Repo   repos.ImportJobRepo
	Notify services.JobNotifier
}

// Counters is the running row tally a pipeline checkpoints as it goes.
type Counters struct {
	TotalRows      int
	ProcessedRows  int
	SuccessfulRows int
	FailedRows     int
	AutoPublished  int
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.ImportJob, repo repos.ImportJobRepo, notify services.JobNotifier) *Context {
	return &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
}

/*
Progress publishes a non-terminal stage transition for this job.
It persists the stage plus a heartbeat, mirrors the fields on the in-memory
job, and emits a notifier event so clients can follow along.
*/
func (c *Context) Progress(stage string) {
	if c == nil {
		return
	}
	ctx := c.ctx()
	now := time.Now()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		_ = c.Repo.UpdateFields(ctx, c.DB, c.Job.ID, map[string]interface{}{
			"stage":        stage,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, stage, c.Job.ProcessedRows, c.Job.TotalRows)
	}
}

/*
Checkpoint persists the current row counters and error list mid-run so a
crashed worker leaves an accurate picture behind. It also refreshes the
heartbeat, which is what keeps the stale-claim reaper off a live job.
*/
func (c *Context) Checkpoint(counters Counters, rowErrors []types.ImportRowError) {
	if c == nil {
		return
	}
	ctx := c.ctx()
	now := time.Now()
	errs := datatypes.NewJSONSlice(rowErrors)

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		_ = c.Repo.UpdateFields(ctx, c.DB, c.Job.ID, map[string]interface{}{
			"total_rows":           counters.TotalRows,
			"processed_rows":       counters.ProcessedRows,
			"successful_rows":      counters.SuccessfulRows,
			"failed_rows":          counters.FailedRows,
			"auto_published_count": counters.AutoPublished,
			"import_errors":        errs,
			"heartbeat_at":         now,
			"updated_at":           now,
		})
	}

	if c.Job != nil {
		c.Job.TotalRows = counters.TotalRows
		c.Job.ProcessedRows = counters.ProcessedRows
		c.Job.SuccessfulRows = counters.SuccessfulRows
		c.Job.FailedRows = counters.FailedRows
		c.Job.AutoPublishedCount = counters.AutoPublished
		c.Job.ImportErrors = errs
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job, c.Job.Stage, counters.ProcessedRows, counters.TotalRows)
	}
}

// Started stamps started_at on first claim and announces the run.
func (c *Context) Started() {
	if c == nil || c.Job == nil {
		return
	}
	ctx := c.ctx()
	now := time.Now()

	if c.Repo != nil && c.Job.ID != uuid.Nil {
		_ = c.Repo.UpdateFields(ctx, c.DB, c.Job.ID, map[string]interface{}{
			"started_at": now,
			"error":      "",
			"updated_at": now,
		})
	}
	c.Job.StartedAt = &now
	c.Job.Error = ""
	c.Job.UpdatedAt = now

	if c.Notify != nil {
		c.Notify.JobStarted(c.Job)
	}
}

/*
Fail marks this job as terminally failed. The error message lands both on the
job's error column and, via the caller's row error list, in import_errors
(row 0 is the conventional slot for job-level failures). locked_at is cleared
so the claim query can see the row again if the retry policy allows it.
*/
func (c *Context) Fail(stage string, err error, rowErrors []types.ImportRowError) {
	if c == nil {
		return
	}
	ctx, cancel := c.terminalCtx()
	defer cancel()
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	errs := datatypes.NewJSONSlice(rowErrors)

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		_ = c.Repo.UpdateFields(ctx, c.DB, c.Job.ID, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"stage":         stage,
			"error":         msg,
			"import_errors": errs,
			"last_error_at": now,
			"locked_at":     nil,
			"completed_at":  now,
			"updated_at":    now,
		})
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.ImportErrors = errs
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.CompletedAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

/*
Complete marks this job as terminally completed with its final counters and
the wall-clock duration since started_at.
*/
func (c *Context) Complete(counters Counters, rowErrors []types.ImportRowError) {
	if c == nil {
		return
	}
	ctx, cancel := c.terminalCtx()
	defer cancel()
	now := time.Now()
	errs := datatypes.NewJSONSlice(rowErrors)
	var duration float64
	if c.Job != nil && c.Job.StartedAt != nil {
		duration = now.Sub(*c.Job.StartedAt).Seconds()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		_ = c.Repo.UpdateFields(ctx, c.DB, c.Job.ID, map[string]interface{}{
			"status":               types.JobStatusCompleted,
			"stage":                "done",
			"total_rows":           counters.TotalRows,
			"processed_rows":       counters.ProcessedRows,
			"successful_rows":      counters.SuccessfulRows,
			"failed_rows":          counters.FailedRows,
			"auto_published_count": counters.AutoPublished,
			"import_errors":        errs,
			"error":                "",
			"locked_at":            nil,
			"completed_at":         now,
			"duration_seconds":     duration,
			"updated_at":           now,
		})
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusCompleted
		c.Job.Stage = "done"
		c.Job.TotalRows = counters.TotalRows
		c.Job.ProcessedRows = counters.ProcessedRows
		c.Job.SuccessfulRows = counters.SuccessfulRows
		c.Job.FailedRows = counters.FailedRows
		c.Job.AutoPublishedCount = counters.AutoPublished
		c.Job.ImportErrors = errs
		c.Job.Error = ""
		c.Job.LockedAt = nil
		c.Job.CompletedAt = &now
		c.Job.DurationSeconds = duration
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobCompleted(c.Job)
	}
}

// Heartbeat refreshes heartbeat_at without touching anything else. Pipelines
// call it from long row loops so slow imports do not look abandoned.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Repo.Heartbeat(c.ctx(), c.DB, c.Job.ID)
}

func (c *Context) ctx() context.Context {
	if c.Ctx != nil {
		return c.Ctx
	}
	return context.Background()
}

// terminalWriteTimeout bounds the detached write that records a terminal
// state.
const terminalWriteTimeout = 10 * time.Second

// terminalCtx detaches from the job's run context. The run context is expired
// or canceled on exactly the failures that most need recording (job timeout,
// shutdown), so terminal-state writes must not ride on it.
func (c *Context) terminalCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.ctx()), terminalWriteTimeout)
}
