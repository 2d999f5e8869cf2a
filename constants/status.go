package constants

import "strings"

// ExtractionMode selects which strategy turns invoice text into fields.
type ExtractionMode string

// Stable values (store these exact strings in DB).
const (
	ModeHeuristic ExtractionMode = "HEURISTIC" // rule-based text parser
	ModeModel     ExtractionMode = "MODEL"     // schema-guided language model
)

// ParseMode accepts the stored values in any case; empty means heuristic.
func ParseMode(s string) (ExtractionMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "HEURISTIC":
		return ModeHeuristic, true
	case "MODEL", "LLM":
		return ModeModel, true
	}
	return "", false
}

// RunStatus tracks an extraction run from upload to stored invoice.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)
