package pipeline

import "log/slog"

// Skip reason codes. The pipeline never forwards internal error detail
// to the reporting channel, only these codes and the offending name.
const (
	ReasonEncrypted    = "encrypted"
	ReasonUnreadable   = "unreadable"
	ReasonBadExtension = "bad-extension"
	ReasonFileLimit    = "file-limit"
)

// Reporter receives structured progress and skip signals from a batch
// run. It is a pure side channel: the pipeline never bases control
// flow on it. Implementations are called from the coordinating
// goroutine only.
type Reporter interface {
	// Skipped signals that a whole document was excluded, with one of
	// the Reason* codes.
	Skipped(name, reason string)
	// Truncated signals that only the first limit pages of a document
	// are processed.
	Truncated(name string, limit int)
	// PageFailed signals that one page was abandoned; its siblings
	// are unaffected.
	PageFailed(name string, page int)
	// Progress reports completed steps out of the precomputed total.
	Progress(completed, total int)
	// BatchEmpty signals that no admissible work exists and no
	// archive will be produced.
	BatchEmpty()
}

// NopReporter discards all signals.
type NopReporter struct{}

func (NopReporter) Skipped(string, string) {}
func (NopReporter) Truncated(string, int)  {}
func (NopReporter) PageFailed(string, int) {}
func (NopReporter) Progress(int, int)      {}
func (NopReporter) BatchEmpty()            {}

// SlogReporter logs every signal through a structured logger.
type SlogReporter struct {
	Logger *slog.Logger
}

func (r SlogReporter) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r SlogReporter) Skipped(name, reason string) {
	r.log().Warn("Document skipped.", "document", name, "reason", reason)
}

func (r SlogReporter) Truncated(name string, limit int) {
	r.log().Warn("Document truncated.", "document", name, "pageLimit", limit)
}

func (r SlogReporter) PageFailed(name string, page int) {
	r.log().Warn("Page failed.", "document", name, "page", page)
}

func (r SlogReporter) Progress(completed, total int) {
	r.log().Debug("Progress.", "completed", completed, "total", total)
}

func (r SlogReporter) BatchEmpty() {
	r.log().Warn("No processable input in batch.")
}
