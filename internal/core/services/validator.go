package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/logger"
)

// Ensure Validator implements the interface.
var _ driven.DocumentValidator = (*Validator)(nil)

// Thresholds for non-blocking warnings.
const (
	lowSignalThreshold        = 0.3
	lowConfidenceThreshold    = 0.5
	lowSynthesisConfidence    = 5.0
	scoreScale                = 10.0
	wordCountMinimumTolerance = 10
)

var contradictionSeverities = map[string]bool{"low": true, "medium": true, "high": true}

// Validator checks documents against their type schema.
type Validator struct {
	resolver driven.ReferenceResolver
}

// NewValidator creates a validator. When resolver is nil upstream
// references are not checked for existence.
func NewValidator(resolver driven.ReferenceResolver) *Validator {
	return &Validator{resolver: resolver}
}

// Validate checks doc and returns every finding. It never fails outright;
// problems are reported in the result.
func (v *Validator) Validate(ctx context.Context, doc domain.Document) domain.ValidationResult {
	c := &checker{}
	if doc == nil {
		c.require(false, "document", domain.SeverityCritical)
		return c.result()
	}

	h := doc.Head()
	v.checkHeader(c, doc)

	switch d := doc.(type) {
	case *domain.ContentBrief:
		v.checkBrief(c, d)
	case *domain.KnowledgeSynthesis:
		v.checkSynthesis(ctx, c, d)
	case *domain.ContentDraft:
		v.checkDraft(ctx, c, d)
	case *domain.PlatformAdaptation:
		v.checkAdaptation(ctx, c, d)
	default:
		c.fail(domain.CodeUnknownType, "type", domain.SeverityCritical, fmt.Sprintf("unsupported document value %T", doc))
	}

	res := c.result()
	if !res.Valid {
		logger.Debug("validation of %s %q failed: %s", h.Type, h.ID, res.Summary())
	}
	return res
}

func (v *Validator) checkHeader(c *checker, doc domain.Document) {
	h := doc.Head()
	c.require(strings.TrimSpace(h.ID) != "", "id", domain.SeverityCritical)
	if c.require(h.Type != "", "type", domain.SeverityCritical) {
		switch {
		case !h.Type.IsValid():
			c.fail(domain.CodeUnknownType, "type", domain.SeverityCritical, fmt.Sprintf("unknown document type %q", h.Type))
		case h.Type != variantType(doc):
			c.fail(domain.Code(domain.CodeTypeMismatch, "type"), "type", domain.SeverityCritical,
				fmt.Sprintf("header says %s but the value is a %s", h.Type, variantType(doc)))
		}
	}

	c.constrain(h.Version >= 0, domain.CodeInvalidVersion, "version", "version must not be negative")
	if h.Meta.Agent != "" {
		c.constrain(h.Meta.Agent.IsValid(), domain.Code(domain.CodeInvalidEnum, "agent"), "agent",
			fmt.Sprintf("unknown agent %q", h.Meta.Agent))
	}
	if h.Meta.Status != "" {
		c.constrain(h.Meta.Status.IsValid(), domain.Code(domain.CodeInvalidEnum, "status"), "status",
			fmt.Sprintf("unknown status %q", h.Meta.Status))
	}
	if !h.Created.IsZero() && !h.Modified.IsZero() {
		c.constrain(!h.Modified.Before(h.Created), domain.Code(domain.CodeInvalidDate, "modified"), "modified",
			"modified is before created")
	}
	c.inRange(h.Meta.Confidence, 0, 1, "confidence")
	if h.Meta.Confidence > 0 && h.Meta.Confidence < lowConfidenceThreshold {
		c.warn(domain.CodeLowConfidence, "confidence", "overall confidence is low", "review the document before publishing")
	}
	c.constrain(h.Meta.WordCount >= 0, domain.Code(domain.CodeOutOfRange, "wordCount"), "wordCount", "word count must not be negative")
}

func (v *Validator) checkBrief(c *checker, b *domain.ContentBrief) {
	if c.require(len(b.Sources) > 0, "sources", domain.SeverityError) {
		for i, s := range b.Sources {
			field := fmt.Sprintf("sources[%d]", i)
			c.require(s.Type != "", field+".type", domain.SeverityError)
			c.require(s.Location != "", field+".location", domain.SeverityError)
			c.inRange(s.Credibility, 0, scoreScale, field+".credibility")
		}
	}

	c.inRange(b.SignalScore, 0, 1, "signalScore")
	if b.SignalScore < lowSignalThreshold {
		c.warn(domain.CodeLowSignal, "signalScore", "signal score is low", "gather stronger sources")
	}

	if len(b.Insights) == 0 {
		c.warn(domain.CodeNoInsights, "insights", "brief has no insights", "extract at least one insight")
	}
	for i, in := range b.Insights {
		field := fmt.Sprintf("insights[%d]", i)
		c.require(strings.TrimSpace(in.Text) != "", field+".text", domain.SeverityError)
		c.inRange(in.Relevance, 0, scoreScale, field+".relevance")
		c.inRange(in.Impact, 0, scoreScale, field+".impact")
		c.inRange(in.Confidence, 0, scoreScale, field+".confidence")
	}

	for i, ct := range b.Contradictions {
		field := fmt.Sprintf("contradictions[%d]", i)
		c.require(ct.Point != "", field+".point", domain.SeverityError)
		c.constrain(contradictionSeverities[ct.Severity], domain.Code(domain.CodeInvalidEnum, field+".severity"), field+".severity",
			fmt.Sprintf("severity %q is not low, medium or high", ct.Severity))
	}
}

func (v *Validator) checkSynthesis(ctx context.Context, c *checker, s *domain.KnowledgeSynthesis) {
	if c.require(s.BriefID != "", "briefId", domain.SeverityError) {
		v.checkReference(ctx, c, "briefId", s.BriefID)
	}
	c.require(strings.TrimSpace(s.Concept) != "", "concept", domain.SeverityError)
	depthOK := c.constrain(s.DepthLevel >= 1 && s.DepthLevel <= 5, domain.Code(domain.CodeOutOfRange, "depthLevel"), "depthLevel",
		fmt.Sprintf("depth level %d is outside 1..5", s.DepthLevel))

	if c.constrain(len(s.Layers) > 0, domain.Code(domain.CodeEmptySequence, "layers"), "layers", "at least one layer is required") {
		seen := make(map[int]bool, len(s.Layers))
		ordered := true
		for i, l := range s.Layers {
			field := fmt.Sprintf("layers[%d]", i)
			c.constrain(l.Level >= 1 && l.Level <= 5, domain.Code(domain.CodeOutOfRange, field+".level"), field+".level",
				fmt.Sprintf("layer level %d is outside 1..5", l.Level))
			c.require(strings.TrimSpace(l.Title) != "", field+".title", domain.SeverityError)
			if i > 0 && l.Level <= s.Layers[i-1].Level {
				ordered = false
			}
			seen[l.Level] = true
		}
		c.constrain(ordered, domain.CodeLayerOrder, "layers", "layers must be in strictly ascending level order")
		if depthOK {
			for lvl := 1; lvl <= s.DepthLevel; lvl++ {
				c.constrain(seen[lvl], domain.Code(domain.CodeLayerGap, fmt.Sprint(lvl)), "layers",
					fmt.Sprintf("no layer for level %d", lvl))
			}
		}
	}

	c.inRange(s.Confidence, 0, scoreScale, "synthesisConfidence")
	if s.Confidence < lowSynthesisConfidence {
		c.warn(domain.CodeLowConfidence, "synthesisConfidence", "synthesis confidence is low", "deepen the analysis")
	}
	if !s.TeachingReady {
		c.warn(domain.CodeNotTeachingReady, "teachingReady", "synthesis is not marked teaching ready", "")
	}
}

func (v *Validator) checkDraft(ctx context.Context, c *checker, d *domain.ContentDraft) {
	if c.require(d.SynthesisID != "", "synthesisId", domain.SeverityError) {
		v.checkReference(ctx, c, "synthesisId", d.SynthesisID)
	}
	c.require(strings.TrimSpace(d.Title) != "", "title", domain.SeverityError)
	c.require(strings.TrimSpace(d.Content) != "", "content", domain.SeverityError)

	if d.Meta.WordCount > 0 {
		counted := CountWords(d.Content)
		tol := max(wordCountMinimumTolerance, counted/10)
		c.constrain(absInt(d.Meta.WordCount-counted) <= tol, domain.CodeWordCountMismatch, "wordCount",
			fmt.Sprintf("word count %d differs from the %d words in content", d.Meta.WordCount, counted))
	}

	prev := 0
	for i, r := range d.Revisions {
		ok := r.Version >= 1 && r.Version >= prev
		if d.Version > 0 {
			ok = ok && r.Version <= d.Version
		}
		c.constrain(ok, domain.Code(domain.CodeRevisionVersion, fmt.Sprint(i)), fmt.Sprintf("revisions[%d].version", i),
			fmt.Sprintf("revision version %d is out of order or ahead of draft version %d", r.Version, d.Version))
		prev = r.Version
	}
}

func (v *Validator) checkAdaptation(ctx context.Context, c *checker, a *domain.PlatformAdaptation) {
	if c.require(a.DraftID != "", "draftId", domain.SeverityError) {
		v.checkReference(ctx, c, "draftId", a.DraftID)
	}
	if c.require(a.Platform != "", "platform", domain.SeverityError) {
		c.constrain(a.Platform.IsValid(), domain.Code(domain.CodeInvalidEnum, "platform"), "platform",
			fmt.Sprintf("unknown platform %q", a.Platform))
	}
	c.require(a.AdaptedContent != "", "adaptedContent", domain.SeverityError)

	length := utf8.RuneCountInString(a.AdaptedContent)
	c.constrain(a.CharacterCount == length, domain.CodeCharCountMismatch, "characterCount",
		fmt.Sprintf("character count %d but content has %d characters", a.CharacterCount, length))

	for i, o := range a.Optimizations {
		field := fmt.Sprintf("optimizations[%d]", i)
		c.require(o.Type != "", field+".type", domain.SeverityError)
		c.inRange(o.Impact, 0, scoreScale, field+".impact")
	}

	rules := a.Rules
	if rules.MaxLength == 0 {
		rules = a.Platform.Rules()
	}
	if rules.MaxLength > 0 && length > rules.MaxLength {
		c.warn(domain.CodeExceedsLimit, "adaptedContent",
			fmt.Sprintf("%d characters exceeds the %s limit of %d", length, a.Platform, rules.MaxLength), "shorten the copy")
	}
	if rules.MaxHashtags > 0 && len(a.Hashtags) > rules.MaxHashtags {
		c.warn(domain.CodeTooManyHashtags, "hashtags",
			fmt.Sprintf("%d hashtags, %s allows %d", len(a.Hashtags), a.Platform, rules.MaxHashtags), "drop the weakest hashtags")
	}
}

func (v *Validator) checkReference(ctx context.Context, c *checker, field, id string) {
	if v.resolver == nil {
		return
	}
	ok, err := v.resolver.Exists(ctx, id)
	if err != nil {
		logger.Warn("could not resolve %s %q: %v", field, id, err)
	}
	c.constrain(ok, domain.Code(domain.CodeMissingReference, field), field,
		fmt.Sprintf("%s %q does not reference a stored document", field, id))
}

// ValidateFrontmatter checks a raw header block before a document is
// reconstructed from it.
func (v *Validator) ValidateFrontmatter(fields map[string]any) domain.ValidationResult {
	c := &checker{}

	if id, ok := fields["flcm_id"]; c.require(ok && id != nil && fmt.Sprint(id) != "", "flcm_id", domain.SeverityCritical) {
		_, isString := id.(string)
		c.constrain(isString, domain.Code(domain.CodeTypeMismatch, "flcm_id"), "flcm_id", "flcm_id must be a string")
	}

	var docType domain.DocumentType
	if raw, ok := fields["flcm_type"]; c.require(ok && raw != nil, "flcm_type", domain.SeverityCritical) {
		s, isString := raw.(string)
		if !domain.DocumentType(s).IsValid() || !isString {
			c.fail(domain.CodeUnknownType, "flcm_type", domain.SeverityCritical, fmt.Sprintf("unknown document type %v", raw))
		} else {
			docType = domain.DocumentType(s)
		}
	}

	if raw, ok := fields["agent"]; c.require(ok && raw != nil, "agent", domain.SeverityError) {
		s, _ := raw.(string)
		c.constrain(domain.Agent(s).IsValid(), domain.Code(domain.CodeInvalidEnum, "agent"), "agent", fmt.Sprintf("unknown agent %v", raw))
	}

	if raw, ok := fields["status"]; c.require(ok && raw != nil, "status", domain.SeverityError) {
		s, _ := raw.(string)
		c.constrain(domain.Status(s).IsValid(), domain.Code(domain.CodeInvalidEnum, "status"), "status", fmt.Sprintf("unknown status %v", raw))
	}

	var created, modified time.Time
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{"created", &created}, {"modified", &modified}} {
		raw, ok := fields[f.name]
		if !c.require(ok && raw != nil, f.name, domain.SeverityError) {
			continue
		}
		t, err := headerTime(raw)
		c.constrain(err == nil, domain.Code(domain.CodeInvalidDate, f.name), f.name, fmt.Sprintf("%s is not an ISO-8601 date: %v", f.name, raw))
		*f.dst = t
	}
	if !created.IsZero() && !modified.IsZero() {
		c.constrain(!modified.Before(created), domain.Code(domain.CodeInvalidDate, "modified"), "modified", "modified is before created")
	}

	if raw, ok := fields["version"]; c.require(ok && raw != nil, "version", domain.SeverityError) {
		n, isInt := raw.(int)
		if c.constrain(isInt, domain.Code(domain.CodeTypeMismatch, "version"), "version", "version must be an integer") {
			c.constrain(n >= 1, domain.CodeInvalidVersion, "version", fmt.Sprintf("version %d is below 1", n))
		}
	}

	checkFieldKinds(c, fields, envelopeFields)
	if kinds, ok := headerFields[docType]; ok {
		checkFieldKinds(c, fields, kinds)
	}

	return c.result()
}

// headerTime accepts the decoded forms of an ISO-8601 header value.
func headerTime(raw any) (time.Time, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", t)
	default:
		return time.Time{}, fmt.Errorf("unexpected %T", raw)
	}
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return domain.CountWords(s)
}

func variantType(doc domain.Document) domain.DocumentType {
	switch doc.(type) {
	case *domain.ContentBrief:
		return domain.TypeContentBrief
	case *domain.KnowledgeSynthesis:
		return domain.TypeKnowledgeSynthesis
	case *domain.ContentDraft:
		return domain.TypeContentDraft
	case *domain.PlatformAdaptation:
		return domain.TypePlatformAdaptation
	default:
		return ""
	}
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// checker accumulates findings and the counts the score is derived from.
type checker struct {
	required    int
	present     int
	constraints int
	passed      int
	errors      []domain.ValidationError
	warnings    []domain.ValidationWarning
}

// require records a required-field check and reports whether it passed.
func (c *checker) require(ok bool, field string, sev domain.Severity) bool {
	c.required++
	if ok {
		c.present++
		return true
	}
	c.errors = append(c.errors, domain.ValidationError{
		Field:    field,
		Code:     domain.Code(domain.CodeMissingField, field),
		Message:  field + " is required",
		Severity: sev,
	})
	return false
}

// constrain records a constraint check and reports whether it passed.
func (c *checker) constrain(ok bool, code, field, msg string) bool {
	c.constraints++
	if ok {
		c.passed++
		return true
	}
	c.errors = append(c.errors, domain.ValidationError{Field: field, Code: code, Message: msg, Severity: domain.SeverityError})
	return false
}

// fail records a failed constraint with an explicit severity.
func (c *checker) fail(code, field string, sev domain.Severity, msg string) {
	c.constraints++
	c.errors = append(c.errors, domain.ValidationError{Field: field, Code: code, Message: msg, Severity: sev})
}

func (c *checker) inRange(val, lo, hi float64, field string) bool {
	ok := !math.IsNaN(val) && val >= lo && val <= hi
	return c.constrain(ok, domain.Code(domain.CodeOutOfRange, field), field,
		fmt.Sprintf("%s %g is outside [%g, %g]", field, val, lo, hi))
}

func (c *checker) warn(code, field, msg, suggestion string) {
	c.warnings = append(c.warnings, domain.ValidationWarning{Field: field, Code: code, Message: msg, Suggestion: suggestion})
}

// result computes the 0-100 score: 50% completeness, 30% constraint pass
// ratio, 20% warning penalty (zero at five warnings).
func (c *checker) result() domain.ValidationResult {
	completeness := 1.0
	if c.required > 0 {
		completeness = float64(c.present) / float64(c.required)
	}
	ratio := 1.0
	if c.constraints > 0 {
		ratio = float64(c.passed) / float64(c.constraints)
	}
	penalty := math.Max(0, 1-float64(len(c.warnings))/5)
	return domain.ValidationResult{
		Valid:    len(c.errors) == 0,
		Errors:   c.errors,
		Warnings: c.warnings,
		Score:    int(math.Round(50*completeness + 30*ratio + 20*penalty)),
	}
}
