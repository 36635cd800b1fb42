package services

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

func validBrief(id string) *domain.ContentBrief {
	return &domain.ContentBrief{
		Header: domain.Header{ID: id, Type: domain.TypeContentBrief},
		Sources: []domain.Source{
			{Type: "url", Location: "https://example.com/post", Title: "Post", Credibility: 8},
		},
		Insights: []domain.Insight{
			{Text: "Small teams ship faster", Relevance: 8, Impact: 7, Confidence: 6},
		},
		SignalScore: 0.8,
		Concepts:    []string{"delivery"},
	}
}

func validSynthesis(id, briefID string) *domain.KnowledgeSynthesis {
	return &domain.KnowledgeSynthesis{
		Header:     domain.Header{ID: id, Type: domain.TypeKnowledgeSynthesis},
		BriefID:    briefID,
		Concept:    "delivery",
		DepthLevel: 3,
		Layers: []domain.Layer{
			{Level: 1, Title: "What"},
			{Level: 2, Title: "How"},
			{Level: 3, Title: "Why"},
		},
		Confidence:    7,
		TeachingReady: true,
	}
}

func validDraft(id, synthesisID string) *domain.ContentDraft {
	return &domain.ContentDraft{
		Header:      domain.Header{ID: id, Type: domain.TypeContentDraft},
		SynthesisID: synthesisID,
		Title:       "Ship small",
		Content:     "Small teams ship faster because they talk less and build more.",
	}
}

func validAdaptation(id, draftID string, p domain.Platform) *domain.PlatformAdaptation {
	content := "Small teams ship faster."
	return &domain.PlatformAdaptation{
		Header:         domain.Header{ID: id, Type: domain.TypePlatformAdaptation},
		DraftID:        draftID,
		Platform:       p,
		AdaptedContent: content,
		CharacterCount: utf8.RuneCountInString(content),
		Hashtags:       []string{"#shipping"},
	}
}

// knownIDs is a ReferenceResolver over a fixed set of ids.
type knownIDs map[string]bool

func (k knownIDs) Exists(_ context.Context, id string) (bool, error) {
	return k[id], nil
}

// recorder is an EventSink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []domain.PipelineEvent
}

func (r *recorder) Emit(e domain.PipelineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
