package frontmatter

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// envelope holds the system fields common to every header.
type envelope struct {
	Type             string   `yaml:"flcm_type"`
	ID               string   `yaml:"flcm_id"`
	Agent            string   `yaml:"agent"`
	Status           string   `yaml:"status"`
	Created          string   `yaml:"created"`
	Modified         string   `yaml:"modified"`
	Version          int      `yaml:"version"`
	Methodologies    []string `yaml:"methodologies,omitempty"`
	ProcessingTimeMS int64    `yaml:"processing_time_ms,omitempty"`
	WordCount        int      `yaml:"word_count,omitempty"`
	Confidence       float64  `yaml:"confidence,omitempty"`
	Tags             []string `yaml:"tags,omitempty"`
}

type briefHeader struct {
	Envelope       envelope               `yaml:",inline"`
	SignalScore    float64                `yaml:"signal_score"`
	Sources        []domain.Source        `yaml:"sources"`
	Insights       []domain.Insight       `yaml:"insights,omitempty"`
	Concepts       []string               `yaml:"concepts,omitempty"`
	Contradictions []domain.Contradiction `yaml:"contradictions,omitempty"`
}

type synthesisHeader struct {
	Envelope      envelope         `yaml:",inline"`
	BriefID       string           `yaml:"brief_id"`
	Concept       string           `yaml:"concept"`
	DepthLevel    int              `yaml:"depth_level"`
	Layers        []domain.Layer   `yaml:"layers,omitempty"`
	Analogies     []domain.Analogy `yaml:"analogies,omitempty"`
	Questions     []string         `yaml:"questions,omitempty"`
	Confidence    float64          `yaml:"synthesis_confidence"`
	TeachingReady bool             `yaml:"teaching_ready"`
}

type draftHeader struct {
	Envelope    envelope            `yaml:",inline"`
	SynthesisID string              `yaml:"synthesis_id"`
	Title       string              `yaml:"title"`
	Content     string              `yaml:"content"`
	Voice       domain.VoiceProfile `yaml:"voice,omitempty"`
	Structure   domain.Structure    `yaml:"structure,omitempty"`
	Hooks       []string            `yaml:"hooks,omitempty"`
	Revisions   []domain.Revision   `yaml:"revisions,omitempty"`
}

type adaptationHeader struct {
	Envelope       envelope              `yaml:",inline"`
	DraftID        string                `yaml:"draft_id"`
	Platform       string                `yaml:"platform"`
	AdaptedContent string                `yaml:"adapted_content"`
	Optimizations  []domain.Optimization `yaml:"optimizations,omitempty"`
	Hashtags       []string              `yaml:"hashtags,omitempty"`
	CharacterCount int                   `yaml:"character_count"`
	Rules          domain.PlatformRules  `yaml:"platform_rules"`
}

func toEnvelope(h *domain.Header) envelope {
	return envelope{
		Type:             string(h.Type),
		ID:               h.ID,
		Agent:            string(h.Meta.Agent),
		Status:           string(h.Meta.Status),
		Created:          formatTime(h.Created),
		Modified:         formatTime(h.Modified),
		Version:          h.Version,
		Methodologies:    cloneStrings(h.Meta.Methodologies),
		ProcessingTimeMS: h.Meta.ProcessingTime.Milliseconds(),
		WordCount:        h.Meta.WordCount,
		Confidence:       h.Meta.Confidence,
		Tags:             cloneStrings(h.Meta.Tags),
	}
}

// header converts the envelope into a domain header. System fields are
// taken as written; absent ones stay zero for the store to assign.
func (e envelope) header(t domain.DocumentType) (domain.Header, error) {
	created, err := parseTime("created", e.Created)
	if err != nil {
		return domain.Header{}, err
	}
	modified, err := parseTime("modified", e.Modified)
	if err != nil {
		return domain.Header{}, err
	}
	return domain.Header{
		ID:       e.ID,
		Type:     t,
		Created:  created,
		Modified: modified,
		Version:  e.Version,
		Meta: domain.Metadata{
			Agent:          domain.Agent(e.Agent),
			Status:         domain.Status(e.Status),
			Methodologies:  nonNil(e.Methodologies),
			ProcessingTime: time.Duration(e.ProcessingTimeMS) * time.Millisecond,
			WordCount:      e.WordCount,
			Confidence:     e.Confidence,
			Tags:           nonNil(e.Tags),
		},
	}, nil
}

func encodeHeader(doc domain.Document) (any, error) {
	switch d := doc.(type) {
	case *domain.ContentBrief:
		return briefHeader{
			Envelope:       toEnvelope(&d.Header),
			SignalScore:    d.SignalScore,
			Sources:        d.Sources,
			Insights:       d.Insights,
			Concepts:       d.Concepts,
			Contradictions: d.Contradictions,
		}, nil
	case *domain.KnowledgeSynthesis:
		return synthesisHeader{
			Envelope:      toEnvelope(&d.Header),
			BriefID:       d.BriefID,
			Concept:       d.Concept,
			DepthLevel:    d.DepthLevel,
			Layers:        d.Layers,
			Analogies:     d.Analogies,
			Questions:     d.Questions,
			Confidence:    d.Confidence,
			TeachingReady: d.TeachingReady,
		}, nil
	case *domain.ContentDraft:
		return draftHeader{
			Envelope:    toEnvelope(&d.Header),
			SynthesisID: d.SynthesisID,
			Title:       d.Title,
			Content:     d.Content,
			Voice:       d.Voice,
			Structure:   d.Structure,
			Hooks:       d.Hooks,
			Revisions:   d.Revisions,
		}, nil
	case *domain.PlatformAdaptation:
		return adaptationHeader{
			Envelope:       toEnvelope(&d.Header),
			DraftID:        d.DraftID,
			Platform:       string(d.Platform),
			AdaptedContent: d.AdaptedContent,
			Optimizations:  d.Optimizations,
			Hashtags:       d.Hashtags,
			CharacterCount: d.CharacterCount,
			Rules:          d.Rules,
		}, nil
	default:
		return nil, fmt.Errorf("frontmatter: %w: %T", domain.ErrUnsupportedType, doc)
	}
}

// decoders dispatch on flcm_type.
var decoders = map[domain.DocumentType]func([]byte) (domain.Document, error){
	domain.TypeContentBrief:       decodeBrief,
	domain.TypeKnowledgeSynthesis: decodeSynthesis,
	domain.TypeContentDraft:       decodeDraft,
	domain.TypePlatformAdaptation: decodeAdaptation,
}

func decodeBrief(head []byte) (domain.Document, error) {
	var h briefHeader
	if err := yaml.Unmarshal(head, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	envHeader, err := h.Envelope.header(domain.TypeContentBrief)
	if err != nil {
		return nil, err
	}
	return &domain.ContentBrief{
		Header:         envHeader,
		Sources:        nonNilSlice(h.Sources),
		Insights:       nonNilSlice(h.Insights),
		SignalScore:    h.SignalScore,
		Concepts:       nonNil(h.Concepts),
		Contradictions: nonNilSlice(h.Contradictions),
	}, nil
}

func decodeSynthesis(head []byte) (domain.Document, error) {
	var h synthesisHeader
	if err := yaml.Unmarshal(head, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	envHeader, err := h.Envelope.header(domain.TypeKnowledgeSynthesis)
	if err != nil {
		return nil, err
	}
	return &domain.KnowledgeSynthesis{
		Header:        envHeader,
		BriefID:       h.BriefID,
		Concept:       h.Concept,
		DepthLevel:    h.DepthLevel,
		Layers:        nonNilSlice(h.Layers),
		Analogies:     nonNilSlice(h.Analogies),
		Questions:     nonNil(h.Questions),
		Confidence:    h.Confidence,
		TeachingReady: h.TeachingReady,
	}, nil
}

func decodeDraft(head []byte) (domain.Document, error) {
	var h draftHeader
	if err := yaml.Unmarshal(head, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	envHeader, err := h.Envelope.header(domain.TypeContentDraft)
	if err != nil {
		return nil, err
	}
	return &domain.ContentDraft{
		Header:      envHeader,
		SynthesisID: h.SynthesisID,
		Title:       h.Title,
		Content:     h.Content,
		Voice:       h.Voice,
		Structure:   h.Structure,
		Hooks:       nonNil(h.Hooks),
		Revisions:   nonNilSlice(h.Revisions),
	}, nil
}

func decodeAdaptation(head []byte) (domain.Document, error) {
	var h adaptationHeader
	if err := yaml.Unmarshal(head, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	envHeader, err := h.Envelope.header(domain.TypePlatformAdaptation)
	if err != nil {
		return nil, err
	}
	platform := domain.Platform(h.Platform)
	rules := h.Rules
	if rules.MaxLength == 0 {
		rules = platform.Rules()
	}
	return &domain.PlatformAdaptation{
		Header:         envHeader,
		DraftID:        h.DraftID,
		Platform:       platform,
		AdaptedContent: h.AdaptedContent,
		Optimizations:  nonNilSlice(h.Optimizations),
		Hashtags:       nonNil(h.Hashtags),
		CharacterCount: h.CharacterCount,
		Rules:          rules,
	}, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
