package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cataloghq/catalog-backend/internal/services"
)

type ImportsHandler struct {
	imports services.ImportService
}

func NewImportsHandler(imports services.ImportService) *ImportsHandler {
	return &ImportsHandler{imports: imports}
}

type submitJobRequest struct {
	SourceID        string `json:"source_id" binding:"required"`
	FileKey         string `json:"file_key"`
	FileName        string `json:"file_name"`
	BatchID         string `json:"batch_id"`
	BatchPart       int    `json:"batch_part"`
	BatchTotalParts int    `json:"batch_total_parts"`
	BatchTotalItems int    `json:"batch_total_items"`
	DedupeKey       string `json:"dedupe_key"`
	DelaySeconds    int    `json:"delay_seconds"`
}

// POST /api/imports/jobs
func (h *ImportsHandler) SubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_source_id", err)
		return
	}
	job, created, err := h.imports.Submit(c.Request.Context(), nil, services.SubmitInput{
		SourceID:        sourceID,
		FileKey:         req.FileKey,
		FileName:        req.FileName,
		BatchID:         req.BatchID,
		BatchPart:       req.BatchPart,
		BatchTotalParts: req.BatchTotalParts,
		BatchTotalItems: req.BatchTotalItems,
		DedupeKey:       req.DedupeKey,
		Delay:           time.Duration(req.DelaySeconds) * time.Second,
	})
	if err != nil {
		RespondError(c, http.StatusBadRequest, "submit_failed", err)
		return
	}
	status := http.StatusCreated
	if !created {
		// An active job with the same dedupe key already exists.
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"job": job, "created": created})
}

// GET /api/imports/jobs/:id
func (h *ImportsHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.imports.GetJob(c.Request.Context(), nil, jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", jobID))
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// DELETE /api/imports/jobs/:id
func (h *ImportsHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	canceled, err := h.imports.CancelPending(c.Request.Context(), nil, jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "cancel_failed", err)
		return
	}
	if !canceled {
		RespondError(c, http.StatusConflict, "not_cancelable",
			fmt.Errorf("job %s is not pending (already running, finished, or unknown)", jobID))
		return
	}
	RespondOK(c, gin.H{"canceled": true})
}

// GET /api/imports/batches/:batch_id
func (h *ImportsHandler) GetBatch(c *gin.Context) {
	batchID := c.Param("batch_id")
	if batchID == "" {
		RespondError(c, http.StatusBadRequest, "invalid_batch_id", fmt.Errorf("missing batch_id"))
		return
	}
	status, err := h.imports.GetBatch(c.Request.Context(), nil, batchID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "batch_lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"batch": status})
}

// GET /api/imports/sources
func (h *ImportsHandler) ListSources(c *gin.Context) {
	sources, err := h.imports.ListSources(c.Request.Context(), nil)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "source_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"sources": sources})
}
