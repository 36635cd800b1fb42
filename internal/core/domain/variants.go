package domain

import (
	"strings"
	"time"
)

// Source is one input consulted during collection.
type Source struct {
	Type        string    `yaml:"type" json:"type"`
	Location    string    `yaml:"location" json:"location"`
	Title       string    `yaml:"title,omitempty" json:"title,omitempty"`
	Author      string    `yaml:"author,omitempty" json:"author,omitempty"`
	Date        time.Time `yaml:"date,omitempty" json:"date,omitempty"`
	Credibility float64   `yaml:"credibility,omitempty" json:"credibility,omitempty"`
}

// Insight is a finding extracted from the sources.
type Insight struct {
	Text       string   `yaml:"text" json:"text"`
	Relevance  float64  `yaml:"relevance" json:"relevance"`
	Impact     float64  `yaml:"impact" json:"impact"`
	Confidence float64  `yaml:"confidence" json:"confidence"`
	Evidence   []string `yaml:"evidence,omitempty" json:"evidence,omitempty"`
}

// Contradiction records two sources that disagree on a point.
type Contradiction struct {
	Point    string `yaml:"point" json:"point"`
	SourceA  string `yaml:"source_a" json:"source_a"`
	SourceB  string `yaml:"source_b" json:"source_b"`
	Severity string `yaml:"severity" json:"severity"`
}

// ContentBrief is produced by the collection stage.
type ContentBrief struct {
	Header

	Sources        []Source
	Insights       []Insight
	SignalScore    float64
	Concepts       []string
	Contradictions []Contradiction
}

// References returns nil; briefs are the head of the lineage.
func (b *ContentBrief) References() map[string]string {
	return nil
}

// Layer is one level of progressive understanding.
type Layer struct {
	Level         int      `yaml:"level" json:"level"`
	Title         string   `yaml:"title" json:"title"`
	Content       string   `yaml:"content,omitempty" json:"content,omitempty"`
	Prerequisites []string `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
	Outcomes      []string `yaml:"outcomes,omitempty" json:"outcomes,omitempty"`
}

// Analogy maps the concept onto something familiar.
type Analogy struct {
	Source      string `yaml:"source" json:"source"`
	Target      string `yaml:"target" json:"target"`
	Explanation string `yaml:"explanation,omitempty" json:"explanation,omitempty"`
}

// KnowledgeSynthesis is produced by the synthesis stage.
type KnowledgeSynthesis struct {
	Header

	BriefID       string
	Concept       string
	DepthLevel    int
	Layers        []Layer
	Analogies     []Analogy
	Questions     []string
	Confidence    float64
	TeachingReady bool
}

// References returns the source brief id.
func (s *KnowledgeSynthesis) References() map[string]string {
	return map[string]string{"briefId": s.BriefID}
}

// VoiceProfile describes the writing voice of a draft.
type VoiceProfile struct {
	Tone              string   `yaml:"tone,omitempty" json:"tone,omitempty"`
	Style             string   `yaml:"style,omitempty" json:"style,omitempty"`
	Vocabulary        []string `yaml:"vocabulary,omitempty" json:"vocabulary,omitempty"`
	SentenceStructure string   `yaml:"sentence_structure,omitempty" json:"sentence_structure,omitempty"`
}

// Structure describes how a draft is organised.
type Structure struct {
	Format   string   `yaml:"format,omitempty" json:"format,omitempty"`
	Sections []string `yaml:"sections,omitempty" json:"sections,omitempty"`
	Flow     string   `yaml:"flow,omitempty" json:"flow,omitempty"`
}

// Revision is one append-only entry in a draft's history.
type Revision struct {
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Changes   []string  `yaml:"changes,omitempty" json:"changes,omitempty"`
	Reason    string    `yaml:"reason,omitempty" json:"reason,omitempty"`
	Agent     Agent     `yaml:"agent,omitempty" json:"agent,omitempty"`
	Version   int       `yaml:"version" json:"version"`
}

// ContentDraft is produced by the creation stage.
type ContentDraft struct {
	Header

	SynthesisID string
	Title       string
	Content     string
	Voice       VoiceProfile
	Structure   Structure
	Hooks       []string
	Revisions   []Revision
}

// References returns the source synthesis id.
func (d *ContentDraft) References() map[string]string {
	return map[string]string{"synthesisId": d.SynthesisID}
}

// AppendRevision records a change. Revisions are never rewritten.
func (d *ContentDraft) AppendRevision(rev Revision) {
	d.Revisions = append(d.Revisions, rev)
}

// Optimization records one platform-specific rewrite.
type Optimization struct {
	Type      string  `yaml:"type" json:"type"`
	Original  string  `yaml:"original,omitempty" json:"original,omitempty"`
	Optimized string  `yaml:"optimized,omitempty" json:"optimized,omitempty"`
	Rationale string  `yaml:"rationale,omitempty" json:"rationale,omitempty"`
	Impact    float64 `yaml:"impact,omitempty" json:"impact,omitempty"`
}

// PlatformAdaptation is produced by the adaptation stage.
type PlatformAdaptation struct {
	Header

	DraftID        string
	Platform       Platform
	AdaptedContent string
	Optimizations  []Optimization
	Hashtags       []string
	CharacterCount int
	Rules          PlatformRules
}

// References returns the source draft id.
func (a *PlatformAdaptation) References() map[string]string {
	return map[string]string{"draftId": a.DraftID}
}

// NewDocument returns an empty variant for the given type.
func NewDocument(t DocumentType) (Document, error) {
	switch t {
	case TypeContentBrief:
		return &ContentBrief{Header: Header{Type: t}}, nil
	case TypeKnowledgeSynthesis:
		return &KnowledgeSynthesis{Header: Header{Type: t}}, nil
	case TypeContentDraft:
		return &ContentDraft{Header: Header{Type: t}}, nil
	case TypePlatformAdaptation:
		return &PlatformAdaptation{Header: Header{Type: t}}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// FillWordCount sets Meta.WordCount from Content when it is unset.
func (d *ContentDraft) FillWordCount() {
	if d.Meta.WordCount == 0 {
		d.Meta.WordCount = CountWords(d.Content)
	}
}
