package services

import (
	"context"
	"log/slog"

	"cloud.google.com/go/firestore"

	"github.com/ykori/colorvisionflow/internal/models"
)

// jobReporter routes pipeline signals into the Firestore job record
// and the structured log. Progress writes are throttled to decile
// changes so a large batch doesn't turn into a Firestore write storm;
// skips and page failures are buffered and flushed once.
type jobReporter struct {
	ctx        context.Context
	docRef     *firestore.DocumentRef
	log        *slog.Logger
	incidents  []models.Incident
	lastDecile int
}

func newJobReporter(ctx context.Context, docRef *firestore.DocumentRef, log *slog.Logger) *jobReporter {
	return &jobReporter{ctx: ctx, docRef: docRef, log: log, lastDecile: -1}
}

func (r *jobReporter) Skipped(name, reason string) {
	r.log.Warn("Document skipped.", "document", name, "reason", reason)
	r.incidents = append(r.incidents, models.Incident{Document: name, Reason: reason})
}

func (r *jobReporter) Truncated(name string, limit int) {
	r.log.Warn("Document truncated.", "document", name, "pageLimit", limit)
	r.incidents = append(r.incidents, models.Incident{Document: name, Reason: "truncated", Limit: limit})
}

func (r *jobReporter) PageFailed(name string, page int) {
	r.log.Warn("Page failed.", "document", name, "page", page)
	r.incidents = append(r.incidents, models.Incident{Document: name, Reason: "page-failed", Page: page})
}

func (r *jobReporter) Progress(completed, total int) {
	decile := completed * 10 / total
	if decile == r.lastDecile {
		return
	}
	r.lastDecile = decile
	r.log.Info("Progress.", "completed", completed, "total", total)
	if _, err := r.docRef.Update(r.ctx, []firestore.Update{
		{Path: "completedSteps", Value: completed},
		{Path: "totalSteps", Value: total},
	}); err != nil {
		r.log.Warn("Failed to write progress.", "error", err)
	}
}

func (r *jobReporter) BatchEmpty() {
	r.log.Warn("No processable input in batch.")
}

// flush writes the buffered incidents to the job record.
func (r *jobReporter) flush() {
	if len(r.incidents) == 0 {
		return
	}
	if _, err := r.docRef.Update(r.ctx, []firestore.Update{
		{Path: "incidents", Value: r.incidents},
	}); err != nil {
		r.log.Warn("Failed to write incidents.", "error", err)
	}
}
