package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

func TestValidator_ValidDocuments(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	docs := []domain.Document{
		validBrief("b1"),
		validSynthesis("s1", "b1"),
		validDraft("d1", "s1"),
		validAdaptation("a1", "d1", domain.PlatformLinkedIn),
	}
	for _, doc := range docs {
		res := v.Validate(ctx, doc)
		assert.True(t, res.Valid, "%s: %s", doc.Head().Type, res.Summary())
		assert.Equal(t, 100, res.Score, doc.Head().Type)
	}
}

func TestValidator_NilDocument(t *testing.T) {
	res := NewValidator(nil).Validate(context.Background(), nil)
	assert.False(t, res.Valid)
	assert.True(t, res.Critical())
}

func TestValidator_BriefWithoutSourcesIsRejected(t *testing.T) {
	v := NewValidator(nil)
	brief := validBrief("b1")
	brief.Sources = nil

	first := v.Validate(context.Background(), brief)
	second := v.Validate(context.Background(), brief)

	assert.False(t, first.Valid)
	assert.True(t, first.HasCode("MISSING_FIELD:sources"))
	assert.False(t, first.Critical())
	assert.Equal(t, first, second)
}

func TestValidator_Header(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*domain.ContentBrief)
		code     string
		critical bool
	}{
		{"missing id", func(b *domain.ContentBrief) { b.ID = " " }, "MISSING_FIELD:id", true},
		{"missing type", func(b *domain.ContentBrief) { b.Type = "" }, "MISSING_FIELD:type", true},
		{"unknown type", func(b *domain.ContentBrief) { b.Type = "memo" }, "UNKNOWN_TYPE", true},
		{"type mismatch", func(b *domain.ContentBrief) { b.Type = domain.TypeContentDraft }, "TYPE_MISMATCH:type", true},
		{"bad status", func(b *domain.ContentBrief) { b.Meta.Status = "lost" }, "INVALID_ENUM:status", false},
		{"bad agent", func(b *domain.ContentBrief) { b.Meta.Agent = "robot" }, "INVALID_ENUM:agent", false},
		{"negative version", func(b *domain.ContentBrief) { b.Version = -1 }, "INVALID_VERSION", false},
		{"confidence range", func(b *domain.ContentBrief) { b.Meta.Confidence = 3 }, "OUT_OF_RANGE:confidence", false},
		{"dates reversed", func(b *domain.ContentBrief) {
			b.Created = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
			b.Modified = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		}, "INVALID_DATE:modified", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brief := validBrief("b1")
			tt.mutate(brief)
			res := v.Validate(ctx, brief)
			assert.False(t, res.Valid)
			assert.True(t, res.HasCode(tt.code), res.Summary())
			assert.Equal(t, tt.critical, res.Critical())
		})
	}
}

func TestValidator_Brief(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.ContentBrief)
		code   string
	}{
		{"signal range", func(b *domain.ContentBrief) { b.SignalScore = 1.5 }, "OUT_OF_RANGE:signalScore"},
		{"source location", func(b *domain.ContentBrief) { b.Sources[0].Location = "" }, "MISSING_FIELD:sources[0].location"},
		{"source credibility", func(b *domain.ContentBrief) { b.Sources[0].Credibility = 11 }, "OUT_OF_RANGE:sources[0].credibility"},
		{"insight text", func(b *domain.ContentBrief) { b.Insights[0].Text = "" }, "MISSING_FIELD:insights[0].text"},
		{"insight relevance", func(b *domain.ContentBrief) { b.Insights[0].Relevance = -1 }, "OUT_OF_RANGE:insights[0].relevance"},
		{"contradiction severity", func(b *domain.ContentBrief) {
			b.Contradictions = []domain.Contradiction{{Point: "p", SourceA: "a", SourceB: "b", Severity: "huge"}}
		}, "INVALID_ENUM:contradictions[0].severity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brief := validBrief("b1")
			tt.mutate(brief)
			res := v.Validate(ctx, brief)
			assert.False(t, res.Valid)
			assert.True(t, res.HasCode(tt.code), res.Summary())
		})
	}
}

func TestValidator_BriefWarnings(t *testing.T) {
	brief := validBrief("b1")
	brief.Insights = nil
	brief.SignalScore = 0.1

	res := NewValidator(nil).Validate(context.Background(), brief)
	assert.True(t, res.Valid)
	assert.True(t, res.HasWarning(domain.CodeNoInsights))
	assert.True(t, res.HasWarning(domain.CodeLowSignal))
	// two warnings cost 40% of the 20 point warning share
	assert.Equal(t, 92, res.Score)
}

func TestValidator_Synthesis(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.KnowledgeSynthesis)
		code   string
	}{
		{"missing brief", func(s *domain.KnowledgeSynthesis) { s.BriefID = "" }, "MISSING_FIELD:briefId"},
		{"depth range", func(s *domain.KnowledgeSynthesis) { s.DepthLevel = 6 }, "OUT_OF_RANGE:depthLevel"},
		{"no layers", func(s *domain.KnowledgeSynthesis) { s.Layers = nil }, "EMPTY_SEQUENCE:layers"},
		{"gap", func(s *domain.KnowledgeSynthesis) { s.Layers = append(s.Layers[:1], s.Layers[2]) }, "LAYER_GAP:2"},
		{"order", func(s *domain.KnowledgeSynthesis) { s.Layers[0], s.Layers[1] = s.Layers[1], s.Layers[0] }, "LAYER_ORDER"},
		{"confidence range", func(s *domain.KnowledgeSynthesis) { s.Confidence = 12 }, "OUT_OF_RANGE:synthesisConfidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syn := validSynthesis("s1", "b1")
			tt.mutate(syn)
			res := v.Validate(ctx, syn)
			assert.False(t, res.Valid)
			assert.True(t, res.HasCode(tt.code), res.Summary())
		})
	}
}

func TestValidator_SynthesisExtraLayersAllowed(t *testing.T) {
	syn := validSynthesis("s1", "b1")
	syn.DepthLevel = 2
	res := NewValidator(nil).Validate(context.Background(), syn)
	assert.True(t, res.Valid, res.Summary())
}

func TestValidator_SynthesisWarnings(t *testing.T) {
	syn := validSynthesis("s1", "b1")
	syn.TeachingReady = false
	syn.Confidence = 2
	res := NewValidator(nil).Validate(context.Background(), syn)
	assert.True(t, res.Valid)
	assert.True(t, res.HasWarning(domain.CodeNotTeachingReady))
	assert.True(t, res.HasWarning(domain.CodeLowConfidence))
}

func TestValidator_References(t *testing.T) {
	v := NewValidator(knownIDs{"b1": true, "s1": true})
	ctx := context.Background()

	assert.True(t, v.Validate(ctx, validSynthesis("s1", "b1")).Valid)
	assert.True(t, v.Validate(ctx, validDraft("d1", "s1")).Valid)

	res := v.Validate(ctx, validSynthesis("s2", "nope"))
	assert.True(t, res.HasCode("MISSING_REFERENCE:briefId"))

	res = v.Validate(ctx, validAdaptation("a1", "d404", domain.PlatformTwitter))
	assert.True(t, res.HasCode("MISSING_REFERENCE:draftId"))
}

func TestValidator_DraftWordCount(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	draft := validDraft("d1", "s1")
	draft.Content = strings.Repeat("word ", 200)

	draft.Meta.WordCount = 215
	assert.True(t, v.Validate(ctx, draft).Valid)

	draft.Meta.WordCount = 230
	res := v.Validate(ctx, draft)
	assert.True(t, res.HasCode(domain.CodeWordCountMismatch))

	// small texts get a floor of ten words
	draft.Content = "one two three"
	draft.Meta.WordCount = 12
	assert.True(t, v.Validate(ctx, draft).Valid)
}

func TestValidator_DraftRevisions(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	draft := validDraft("d1", "s1")
	draft.Version = 2
	draft.AppendRevision(domain.Revision{Version: 1, Reason: "first"})
	draft.AppendRevision(domain.Revision{Version: 2, Reason: "edit"})
	assert.True(t, v.Validate(ctx, draft).Valid)

	draft.AppendRevision(domain.Revision{Version: 3, Reason: "ahead"})
	res := v.Validate(ctx, draft)
	assert.True(t, res.HasCode("REVISION_VERSION:2"), res.Summary())

	draft.Revisions = []domain.Revision{{Version: 2}, {Version: 1}}
	res = v.Validate(ctx, draft)
	assert.True(t, res.HasCode("REVISION_VERSION:1"), res.Summary())
}

func TestValidator_Adaptation(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	a := validAdaptation("a1", "d1", domain.PlatformTwitter)
	a.CharacterCount++
	assert.True(t, v.Validate(ctx, a).HasCode(domain.CodeCharCountMismatch))

	a = validAdaptation("a1", "d1", domain.Platform("myspace"))
	assert.True(t, v.Validate(ctx, a).HasCode("INVALID_ENUM:platform"))

	a = validAdaptation("a1", "d1", "")
	assert.True(t, v.Validate(ctx, a).HasCode("MISSING_FIELD:platform"))

	a = validAdaptation("a1", "d1", domain.PlatformTwitter)
	a.Optimizations = []domain.Optimization{{Type: "hook", Impact: 20}}
	assert.True(t, v.Validate(ctx, a).HasCode("OUT_OF_RANGE:optimizations[0].impact"))
}

func TestValidator_AdaptationCountsRunes(t *testing.T) {
	a := validAdaptation("a1", "d1", domain.PlatformXiaohongshu)
	a.AdaptedContent = "小团队更快"
	a.CharacterCount = 5
	assert.True(t, NewValidator(nil).Validate(context.Background(), a).Valid)
}

func TestValidator_AdaptationPlatformWarnings(t *testing.T) {
	a := validAdaptation("a1", "d1", domain.PlatformTwitter)
	a.AdaptedContent = strings.Repeat("x", 300)
	a.CharacterCount = 300
	a.Hashtags = []string{"#a", "#b", "#c"}

	res := NewValidator(nil).Validate(context.Background(), a)
	assert.True(t, res.Valid)
	assert.True(t, res.HasWarning(domain.CodeExceedsLimit))
	assert.True(t, res.HasWarning(domain.CodeTooManyHashtags))

	// the snapshot taken at adaptation time wins over the built-in rules
	a.Rules = domain.PlatformRules{MaxLength: 500, MaxHashtags: 5}
	res = NewValidator(nil).Validate(context.Background(), a)
	assert.Empty(t, res.Warnings)
}

func validFields() map[string]any {
	return map[string]any{
		"flcm_id":   "b1",
		"flcm_type": "content-brief",
		"agent":     "collector",
		"status":    "pending",
		"created":   "2025-01-02T03:04:05Z",
		"modified":  time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		"version":   2,
	}
}

func TestValidator_ValidateFrontmatter(t *testing.T) {
	v := NewValidator(nil)
	res := v.ValidateFrontmatter(validFields())
	assert.True(t, res.Valid, res.Summary())
	assert.Equal(t, 100, res.Score)

	tests := []struct {
		name     string
		mutate   func(map[string]any)
		code     string
		critical bool
	}{
		{"missing id", func(f map[string]any) { delete(f, "flcm_id") }, "MISSING_FIELD:flcm_id", true},
		{"numeric id", func(f map[string]any) { f["flcm_id"] = 7 }, "TYPE_MISMATCH:flcm_id", false},
		{"missing type", func(f map[string]any) { delete(f, "flcm_type") }, "MISSING_FIELD:flcm_type", true},
		{"unknown type", func(f map[string]any) { f["flcm_type"] = "memo" }, "UNKNOWN_TYPE", true},
		{"missing agent", func(f map[string]any) { delete(f, "agent") }, "MISSING_FIELD:agent", false},
		{"bad status", func(f map[string]any) { f["status"] = "lost" }, "INVALID_ENUM:status", false},
		{"bad date", func(f map[string]any) { f["created"] = "yesterday" }, "INVALID_DATE:created", false},
		{"reversed dates", func(f map[string]any) { f["created"] = "2026-01-01" }, "INVALID_DATE:modified", false},
		{"string version", func(f map[string]any) { f["version"] = "2" }, "TYPE_MISMATCH:version", false},
		{"zero version", func(f map[string]any) { f["version"] = 0 }, "INVALID_VERSION", false},
		{"text signal score", func(f map[string]any) { f["signal_score"] = "high" }, "TYPE_MISMATCH:signal_score", false},
		{"scalar sources", func(f map[string]any) { f["sources"] = "https://example.com" }, "TYPE_MISMATCH:sources", false},
		{"sources of scalars", func(f map[string]any) { f["sources"] = []any{"https://example.com"} }, "TYPE_MISMATCH:sources", false},
		{"nested concepts", func(f map[string]any) { f["concepts"] = []any{map[string]any{"a": 1}} }, "TYPE_MISMATCH:concepts", false},
		{"text confidence", func(f map[string]any) { f["confidence"] = "sure" }, "TYPE_MISMATCH:confidence", false},
		{"decimal word count", func(f map[string]any) { f["word_count"] = 12.5 }, "TYPE_MISMATCH:word_count", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			tt.mutate(fields)
			res := v.ValidateFrontmatter(fields)
			require.False(t, res.Valid)
			assert.True(t, res.HasCode(tt.code), res.Summary())
			assert.Equal(t, tt.critical, res.Critical())
		})
	}
}

func TestValidator_ValidateFrontmatter_FieldShapes(t *testing.T) {
	v := NewValidator(nil)

	brief := validFields()
	brief["signal_score"] = 1
	brief["sources"] = []any{map[string]any{"type": "url", "location": "https://example.com"}}
	brief["concepts"] = []any{"go", 2}
	brief["word_count"] = int64(40)
	brief["tags"] = nil
	res := v.ValidateFrontmatter(brief)
	assert.True(t, res.Valid, res.Summary())

	// fields of other types are not checked against this one
	brief["depth_level"] = "deep"
	assert.True(t, v.ValidateFrontmatter(brief).Valid)

	syn := validFields()
	syn["flcm_type"] = "knowledge-synthesis"
	syn["depth_level"] = "deep"
	syn["teaching_ready"] = "yes"
	syn["brief_id"] = 2024
	res = v.ValidateFrontmatter(syn)
	assert.True(t, res.HasCode("TYPE_MISMATCH:depth_level"), res.Summary())
	assert.True(t, res.HasCode("TYPE_MISMATCH:teaching_ready"), res.Summary())
	assert.False(t, res.HasCode("TYPE_MISMATCH:brief_id"), "scalars read as text")

	adaptation := validFields()
	adaptation["flcm_type"] = "platform-adaptation"
	adaptation["character_count"] = "12"
	adaptation["platform_rules"] = []any{"max_length"}
	res = v.ValidateFrontmatter(adaptation)
	assert.True(t, res.HasCode("TYPE_MISMATCH:character_count"), res.Summary())
	assert.True(t, res.HasCode("TYPE_MISMATCH:platform_rules"), res.Summary())
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 3, CountWords(" one\ttwo\nthree "))
}
