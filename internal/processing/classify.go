package processing

import "strings"

// Canonical is the engine's view of a provider status.
type Canonical string

// Canonical statuses
const (
	CanonicalQueued     Canonical = "queued"
	CanonicalProcessing Canonical = "processing"
	CanonicalSucceeded  Canonical = "succeeded"
	CanonicalFailed     Canonical = "failed"
	CanonicalUnknown    Canonical = "unknown"
)

// IsTerminal reports whether c ends the job.
func (c Canonical) IsTerminal() bool {
	return c == CanonicalSucceeded || c == CanonicalFailed
}

var statusVocabulary = map[string]Canonical{
	"queued":      CanonicalQueued,
	"in_queue":    CanonicalQueued,
	"inqueue":     CanonicalQueued,
	"pending":     CanonicalQueued,
	"submitted":   CanonicalQueued,
	"starting":    CanonicalQueued,
	"waiting":     CanonicalQueued,
	"scheduled":   CanonicalQueued,
	"created":     CanonicalQueued,
	"processing":  CanonicalProcessing,
	"running":     CanonicalProcessing,
	"in_progress": CanonicalProcessing,
	"inprogress":  CanonicalProcessing,
	"started":     CanonicalProcessing,
	"active":      CanonicalProcessing,
	"generating":  CanonicalProcessing,
	"succeeded":   CanonicalSucceeded,
	"success":     CanonicalSucceeded,
	"successful":  CanonicalSucceeded,
	"completed":   CanonicalSucceeded,
	"complete":    CanonicalSucceeded,
	"done":        CanonicalSucceeded,
	"finished":    CanonicalSucceeded,
	"ok":          CanonicalSucceeded,
	"failed":      CanonicalFailed,
	"failure":     CanonicalFailed,
	"error":       CanonicalFailed,
	"errored":     CanonicalFailed,
	"canceled":    CanonicalFailed,
	"cancelled":   CanonicalFailed,
	"aborted":     CanonicalFailed,
	"rejected":    CanonicalFailed,
	"timeout":     CanonicalFailed,
	"timed_out":   CanonicalFailed,
	"expired":     CanonicalFailed,
}

var normalizer = strings.NewReplacer("-", "_", " ", "_")

// Classify maps a provider status string to a canonical status. Matching is
// case-insensitive and treats dashes and spaces like underscores. Anything
// unrecognized is CanonicalUnknown.
func Classify(status string) Canonical {
	key := normalizer.Replace(strings.ToLower(strings.TrimSpace(status)))
	if c, ok := statusVocabulary[key]; ok {
		return c
	}
	return CanonicalUnknown
}

var terminalEvents = map[string]struct{}{
	"job.ended":     {},
	"job.completed": {},
	"job.succeeded": {},
	"job.failed":    {},
	"job.cancelled": {},
	"job.canceled":  {},
}

// IsTerminalEvent reports whether a webhook event class announces the end of
// a job. Only such events are reconciled.
func IsTerminalEvent(event string) bool {
	_, ok := terminalEvents[strings.ToLower(strings.TrimSpace(event))]
	return ok
}
