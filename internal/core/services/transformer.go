package services

import (
	"slices"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

const defaultDepthLevel = 3

// SynthesisSkeleton is the part of a KnowledgeSynthesis derivable from its
// brief. It is not a document; Pipeline.TransformDocument completes it.
type SynthesisSkeleton struct {
	BriefID       string
	Concept       string
	DepthLevel    int
	Questions     []string
	Methodologies []string
	Tags          []string
}

// DraftSkeleton is the part of a ContentDraft derivable from its synthesis.
type DraftSkeleton struct {
	SynthesisID   string
	Title         string
	Structure     domain.Structure
	Methodologies []string
	Tags          []string
}

// AdaptationSkeleton is the part of a PlatformAdaptation derivable from its draft.
type AdaptationSkeleton struct {
	DraftID       string
	Platform      domain.Platform
	Rules         domain.PlatformRules
	Methodologies []string
	Tags          []string
}

// BriefToSynthesis seeds a synthesis from a brief.
func BriefToSynthesis(brief *domain.ContentBrief, opts domain.TransformOptions) SynthesisSkeleton {
	sk := SynthesisSkeleton{
		BriefID:       brief.ID,
		DepthLevel:    defaultDepthLevel,
		Methodologies: merge(brief.Meta.Methodologies, opts.Methodologies),
		Tags:          merge(brief.Meta.Tags, opts.Tags),
	}
	if opts.DepthLevel > 0 {
		sk.DepthLevel = opts.DepthLevel
	}
	if len(brief.Concepts) > 0 {
		sk.Concept = brief.Concepts[0]
	}
	for _, c := range brief.Contradictions {
		sk.Questions = append(sk.Questions, c.Point)
	}
	return sk
}

// SynthesisToDraft seeds a draft from a synthesis.
func SynthesisToDraft(syn *domain.KnowledgeSynthesis, opts domain.TransformOptions) DraftSkeleton {
	sk := DraftSkeleton{
		SynthesisID:   syn.ID,
		Title:         syn.Concept,
		Methodologies: merge(syn.Meta.Methodologies, opts.Methodologies),
		Tags:          merge(syn.Meta.Tags, opts.Tags),
	}
	for _, l := range syn.Layers {
		sk.Structure.Sections = append(sk.Structure.Sections, l.Title)
	}
	if len(sk.Structure.Sections) > 0 {
		sk.Structure.Flow = "progressive"
	}
	return sk
}

// DraftToAdaptation seeds an adaptation of a draft for one platform,
// snapshotting the platform rules in force now.
func DraftToAdaptation(draft *domain.ContentDraft, platform domain.Platform, opts domain.TransformOptions) AdaptationSkeleton {
	return AdaptationSkeleton{
		DraftID:       draft.ID,
		Platform:      platform,
		Rules:         platform.Rules(),
		Methodologies: merge(draft.Meta.Methodologies, opts.Methodologies),
		Tags:          merge(draft.Meta.Tags, opts.Tags),
	}
}

func (sk SynthesisSkeleton) build(h domain.Header) *domain.KnowledgeSynthesis {
	h.Meta.Methodologies = sk.Methodologies
	h.Meta.Tags = sk.Tags
	return &domain.KnowledgeSynthesis{
		Header:     h,
		BriefID:    sk.BriefID,
		Concept:    sk.Concept,
		DepthLevel: sk.DepthLevel,
		Questions:  sk.Questions,
	}
}

func (sk DraftSkeleton) build(h domain.Header) *domain.ContentDraft {
	h.Meta.Methodologies = sk.Methodologies
	h.Meta.Tags = sk.Tags
	return &domain.ContentDraft{
		Header:      h,
		SynthesisID: sk.SynthesisID,
		Title:       sk.Title,
		Structure:   sk.Structure,
	}
}

func (sk AdaptationSkeleton) build(h domain.Header) *domain.PlatformAdaptation {
	h.Meta.Methodologies = sk.Methodologies
	h.Meta.Tags = sk.Tags
	return &domain.PlatformAdaptation{
		Header:   h,
		DraftID:  sk.DraftID,
		Platform: sk.Platform,
		Rules:    sk.Rules,
	}
}

// merge returns the distinct values of a then b, in order.
func merge(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, v := range slices.Concat(a, b) {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
