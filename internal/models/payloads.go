package models

// SimulationCompletePayload is the JSON argument handed to the
// downstream Cloud Workflow once a batch archive has been written.
type SimulationCompletePayload struct {
	JobID      string `json:"jobId"`
	ArchiveURI string `json:"archiveUri"`
	EntryCount int    `json:"entryCount"`
}
