package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-outreach-batch/internal/observability"
)

// ProgressSource reports the current state of a run.
type ProgressSource interface {
	Snapshot() observability.ProgressSnapshot
}

// Status serves health and progress of the current run.
type Status struct {
	Progress ProgressSource
}

// New returns the status handlers.
func New(p ProgressSource) *Status { return &Status{Progress: p} }

// Health always answers ok while the process is up.
func (h *Status) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Snapshot returns the progress of the run as JSON.
func (h *Status) Snapshot(c *gin.Context) {
	if h.Progress == nil {
		Fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "no run in progress")
		return
	}
	c.JSON(http.StatusOK, h.Progress.Snapshot())
}
