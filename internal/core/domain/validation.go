package domain

import "strings"

// Severity grades a validation error.
type Severity string

// Validation severities.
const (
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Validation error code prefixes. Codes are stable and usually carry the
// field name after a colon, e.g. MISSING_FIELD:sources.
const (
	CodeMissingField      = "MISSING_FIELD"
	CodeTypeMismatch      = "TYPE_MISMATCH"
	CodeOutOfRange        = "OUT_OF_RANGE"
	CodeInvalidEnum       = "INVALID_ENUM"
	CodeEmptySequence     = "EMPTY_SEQUENCE"
	CodeInvalidDate       = "INVALID_DATE"
	CodeLayerOrder        = "LAYER_ORDER"
	CodeLayerGap          = "LAYER_GAP"
	CodeWordCountMismatch = "WORD_COUNT_MISMATCH"
	CodeCharCountMismatch = "CHARACTER_COUNT_MISMATCH"
	CodeRevisionVersion   = "REVISION_VERSION"
	CodeMissingReference  = "MISSING_REFERENCE"
	CodeReferenceMismatch = "REFERENCE_MISMATCH"
	CodeLowConfidence     = "LOW_CONFIDENCE"
	CodeLowSignal         = "LOW_SIGNAL"
	CodeExceedsLimit      = "EXCEEDS_PLATFORM_LIMIT"
	CodeTooManyHashtags   = "TOO_MANY_HASHTAGS"
	CodeNoInsights        = "NO_INSIGHTS"
	CodeNotTeachingReady  = "NOT_TEACHING_READY"
	CodeMalformedHeader   = "MALFORMED_HEADER"
	CodeInvalidVersion    = "INVALID_VERSION"
	CodeUnknownType       = "UNKNOWN_TYPE"
)

// Code joins a code prefix and a field name.
func Code(prefix, field string) string {
	if field == "" {
		return prefix
	}
	return prefix + ":" + field
}

// ValidationError is a blocking validation finding.
type ValidationError struct {
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// ValidationWarning is a non-blocking suggestion.
type ValidationWarning struct {
	Field      string `json:"field"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidationResult is the outcome of validating a document or header.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	Score    int                 `json:"score"`
}

// HasCode reports whether any error carries the exact code.
func (r ValidationResult) HasCode(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// HasWarning reports whether any warning carries the exact code.
func (r ValidationResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Critical reports whether an identity field failed.
func (r ValidationResult) Critical() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Summary renders the error codes on one line.
func (r ValidationResult) Summary() string {
	if r.Valid {
		return "valid"
	}
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return strings.Join(codes, ", ")
}
