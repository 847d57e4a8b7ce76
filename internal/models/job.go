package models

import "time"

// Job represents the main record for one simulation batch in
// Firestore. It tracks overall status and the final progress counters.
type Job struct {
	BatchPrefix         string    `firestore:"batchPrefix,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	DocumentCount       int       `firestore:"documentCount,omitempty"`
	TotalSteps          int       `firestore:"totalSteps,omitempty"`
	CompletedSteps      int       `firestore:"completedSteps,omitempty"`
	ArchiveEntries      int       `firestore:"archiveEntries,omitempty"`
	ArchiveObject       string    `firestore:"archiveObject,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}

// Job status values.
const (
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusEmpty      = "EMPTY"
	JobStatusFailed     = "FAILED"
)

// Incident is one skipped document, truncation or failed page,
// recorded on the job for the client UI. Only short reason codes are
// stored, never library error text.
type Incident struct {
	Document string `firestore:"document"`
	Reason   string `firestore:"reason"`
	Page     int    `firestore:"page,omitempty"`
	Limit    int    `firestore:"limit,omitempty"`
}
