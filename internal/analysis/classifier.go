package analysis

import (
	"math"
	"strings"
	"time"
)

// Status is the parsed verdict of one analysis response.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusCaution Status = "caution"
	StatusFailed  Status = "failed"
	StatusIdle    Status = "idle"
	StatusUnknown Status = "unknown"
)

// Result is one immutable classified analysis.
type Result struct {
	Timestamp  time.Time `json:"timestamp"`
	RawText    string    `json:"raw_text"`
	Status     Status    `json:"status"`
	Confidence float64   `json:"confidence"`
	// Healthy is the collapsed 0/1 verdict used to gate alerting.
	Healthy int `json:"healthy"`
}

// rule maps a leading marker or keyword set to a status and a base
// confidence. Rules are evaluated in order; the first match wins.
type rule struct {
	marker     string
	keywords   []string
	status     Status
	confidence float64
}

var rules = []rule{
	{marker: "✅", status: StatusHealthy, confidence: 0.90},
	{marker: "⚠️", status: StatusCaution, confidence: 0.80},
	{marker: "❌", status: StatusFailed, confidence: 0.85},
	{marker: "🤷", status: StatusIdle, confidence: 0.70},
	{keywords: []string{"good", "normal", "fine", "successful"}, status: StatusHealthy, confidence: 0.60},
	{keywords: []string{"issue", "problem", "warning", "concern"}, status: StatusCaution, confidence: 0.60},
	{keywords: []string{"failure", "failed", "error", "broken"}, status: StatusFailed, confidence: 0.60},
}

// Keyword sets for resolving the binary verdict of unknown-status text.
var (
	positiveKeywords = []string{"good", "normal", "fine", "successful", "excellent", "perfect"}
	negativeKeywords = []string{"failure", "failed", "error", "broken", "issue", "problem", "warning", "concern", "spaghetti", "detached", "warped"}

	// Cosmetic bed condition is not a failure signal; these only matter
	// when no structural-defect keyword appears alongside them.
	contaminationKeywords = []string{"residue", "contamination", "contaminated", "dirty", "debris", "smudge", "messy"}
	defectKeywords        = []string{"warped", "detached", "spaghetti", "stringing", "clogged", "collapsed", "broken", "failure", "failed"}
)

// Classify maps raw analysis text to a status and a confidence score.
// The leading marker decides first; keyword fallbacks apply otherwise.
// Confidence is adjusted by response length and clamped to [0.5, 1.0].
func Classify(rawText string) (Status, float64) {
	status, confidence := StatusUnknown, 0.50

	trimmed := strings.TrimSpace(rawText)
	lower := strings.ToLower(trimmed)

	for _, r := range rules {
		if r.marker != "" {
			if strings.HasPrefix(trimmed, r.marker) {
				status, confidence = r.status, r.confidence
				break
			}
			continue
		}
		if containsAny(lower, r.keywords) {
			status, confidence = r.status, r.confidence
			break
		}
	}

	words := len(strings.Fields(trimmed))
	switch {
	case words > 20:
		confidence += 0.05
	case words < 5:
		confidence -= 0.10
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.5 {
		confidence = 0.5
	}

	return status, math.Round(confidence*100) / 100
}

// BinaryHealthy collapses a status into the 0/1 verdict that gates
// alerting. Idle counts as healthy unless the text explicitly says the
// printer is not visible. Unknown text is resolved by a keyword vote with
// ties defaulting to healthy; contamination mentions without a structural
// defect keyword bias the vote toward healthy.
func BinaryHealthy(rawText string, status Status) int {
	lower := strings.ToLower(rawText)

	switch status {
	case StatusHealthy:
		return 1
	case StatusFailed, StatusCaution:
		return 0
	case StatusIdle:
		if strings.Contains(lower, "no printer") || strings.Contains(lower, "not visible") {
			return 0
		}
		return 1
	}

	positive := countAny(lower, positiveKeywords)
	negative := countAny(lower, negativeKeywords)
	if containsAny(lower, contaminationKeywords) && !containsAny(lower, defectKeywords) {
		positive++
	}
	if positive >= negative {
		return 1
	}
	return 0
}

// NewResult classifies raw text into a complete immutable Result.
func NewResult(rawText string, at time.Time) Result {
	status, confidence := Classify(rawText)
	return Result{
		Timestamp:  at,
		RawText:    rawText,
		Status:     status,
		Confidence: confidence,
		Healthy:    BinaryHealthy(rawText, status),
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func countAny(s string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(s, k) {
			n++
		}
	}
	return n
}
