package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flcm/internal/adapters/driven/codec/frontmatter"
	"github.com/custodia-labs/flcm/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/flcm/internal/core/domain"
)

func defaultOptions() PipelineOptions {
	return PipelineOptionsFrom(domain.DefaultAppSettings().Pipeline)
}

func setupPipeline(t *testing.T, opts PipelineOptions) (*Pipeline, *memory.DocumentStore, *recorder) {
	t.Helper()
	store := memory.NewDocumentStore(frontmatter.New(), nil)
	p := NewPipeline(store, NewValidator(store), opts)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	rec := &recorder{}
	p.Subscribe(rec)
	return p, store, rec
}

// runToCreation starts a run and moves it to creation using ids prefixed with prefix.
func runToCreation(t *testing.T, p *Pipeline, prefix string) string {
	t.Helper()
	ctx := context.Background()
	id, err := p.StartPipeline(ctx, validBrief(prefix+"b"))
	require.NoError(t, err)
	require.NoError(t, p.TransitionToSynthesis(ctx, id, validSynthesis(prefix+"s", prefix+"b")))
	require.NoError(t, p.TransitionToCreation(ctx, id, validDraft(prefix+"d", prefix+"s")))
	return id
}

func TestPipelineOptionsFrom(t *testing.T) {
	s := domain.PipelineSettings{
		Validate: true, Persist: false, BestEffort: true,
		MaxRetries: 7, RetryDelay: time.Second, CancelPolicy: domain.CancelDelete,
	}
	assert.Equal(t, PipelineOptions{
		Validate: true, Persist: false, BestEffortPersistence: true,
		MaxRetries: 7, RetryDelay: time.Second, CancelPolicy: domain.CancelDelete,
	}, PipelineOptionsFrom(s))
}

func TestPipeline_EndToEnd(t *testing.T) {
	p, store, rec := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	brief := validBrief("b1")
	id, err := p.StartPipeline(ctx, brief)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, p.Active())

	syn := validSynthesis("s1", "b1")
	require.NoError(t, p.TransitionToSynthesis(ctx, id, syn))

	draft := validDraft("d1", "s1")
	require.NoError(t, p.TransitionToCreation(ctx, id, draft))
	assert.Equal(t, 11, draft.Meta.WordCount)

	adaptation := validAdaptation("a1", "d1", domain.PlatformLinkedIn)
	require.NoError(t, p.TransitionToAdaptation(ctx, id, adaptation))

	res, err := p.CompletePipeline(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	assert.Equal(t, domain.StageComplete, res.Context.CurrentStage)
	assert.GreaterOrEqual(t, res.Duration, time.Duration(0))

	final, ok := res.FinalDocument.(*domain.PlatformAdaptation)
	require.True(t, ok)
	assert.Equal(t, draft.ID, final.DraftID)
	assert.Equal(t, []string{"b1", "s1", "d1", "a1"}, res.Context.Persisted)

	for _, docID := range []string{"b1", "s1", "d1", "a1"} {
		stored, err := store.Load(ctx, docID)
		require.NoError(t, err, docID)
		assert.Equal(t, domain.StatusProcessed, stored.Document.Head().Meta.Status)
		assert.Equal(t, 1, stored.Document.Head().Version)
	}

	assert.Equal(t, []domain.EventType{
		domain.EventPipelineStarted,
		domain.EventStageTransition,
		domain.EventStageTransition,
		domain.EventStageTransition,
		domain.EventPipelineCompleted,
	}, rec.types())
	assert.Empty(t, p.Active())

	_, err = p.Context(id)
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
}

func TestPipeline_StageOrdering(t *testing.T) {
	p, _, _ := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)

	err = p.TransitionToCreation(ctx, id, validDraft("d1", "s1"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = p.TransitionToAdaptation(ctx, id, validAdaptation("a1", "d1", domain.PlatformTwitter))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = p.CompletePipeline(ctx, id)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	snap, err := p.Context(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StageCollection, snap.CurrentStage)
	assert.Empty(t, snap.Errors)

	require.NoError(t, p.TransitionToSynthesis(ctx, id, validSynthesis("s1", "b1")))
	// no re-entry into a prior stage
	err = p.TransitionToSynthesis(ctx, id, validSynthesis("s2", "b1"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPipeline_ContextNotFound(t *testing.T) {
	p, _, _ := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	err := p.TransitionToSynthesis(ctx, "nope", validSynthesis("s1", "b1"))
	assert.ErrorIs(t, err, domain.ErrContextNotFound)

	var perr *domain.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nope", perr.ContextID)

	_, err = p.CompletePipeline(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
	assert.ErrorIs(t, p.CancelPipeline(ctx, "nope", ""), domain.ErrContextNotFound)
	assert.ErrorIs(t, p.RetryStage(ctx, "nope", 0), domain.ErrContextNotFound)
}

func TestPipeline_Start_InvalidBrief(t *testing.T) {
	p, store, rec := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	brief := validBrief("b1")
	brief.Sources = nil
	_, err := p.StartPipeline(ctx, brief)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	assert.Empty(t, p.Active())
	assert.Empty(t, rec.types())
	exists, err := store.Exists(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPipeline_Start_StorageFailureIsFatal(t *testing.T) {
	opts := defaultOptions()
	opts.BestEffortPersistence = true
	p, store, _ := setupPipeline(t, opts)
	store.FailSaves = true

	_, err := p.StartPipeline(context.Background(), validBrief("b1"))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, p.Active())
}

func TestPipeline_ValidationFailureKeepsRunAlive(t *testing.T) {
	p, _, rec := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)

	bad := validSynthesis("s1", "b1")
	bad.DepthLevel = 9
	err = p.TransitionToSynthesis(ctx, id, bad)
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	snap, err := p.Context(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StageCollection, snap.CurrentStage)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, rec.types(), domain.EventStageError)

	// the caller corrects the document and tries again
	require.NoError(t, p.TransitionToSynthesis(ctx, id, validSynthesis("s1", "b1")))
	require.NoError(t, p.TransitionToCreation(ctx, id, validDraft("d1", "s1")))
	require.NoError(t, p.TransitionToAdaptation(ctx, id, validAdaptation("a1", "d1", domain.PlatformTwitter)))

	res, err := p.CompletePipeline(ctx, id)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], domain.ErrValidationFailed)
}

func TestPipeline_ReferenceMismatch(t *testing.T) {
	p, _, _ := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)
	_, err = p.StartPipeline(ctx, validBrief("b2"))
	require.NoError(t, err)

	// b2 exists in storage but belongs to another run
	err = p.TransitionToSynthesis(ctx, id, validSynthesis("s1", "b2"))
	var verr *domain.ValidationFailedError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Result.HasCode("REFERENCE_MISMATCH:briefId"))
}

func TestPipeline_NoValidation(t *testing.T) {
	opts := defaultOptions()
	opts.Validate = false
	opts.Persist = false
	p := NewPipeline(nil, nil, opts)
	ctx := context.Background()

	brief := validBrief("b1")
	brief.Sources = nil
	id, err := p.StartPipeline(ctx, brief)
	require.NoError(t, err)

	syn := validSynthesis("s1", "b1")
	syn.DepthLevel = 42
	require.NoError(t, p.TransitionToSynthesis(ctx, id, syn))

	// lineage is still enforced
	err = p.TransitionToCreation(ctx, id, validDraft("d1", "elsewhere"))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestPipeline_WithoutPersistenceReferencesResolveInRun(t *testing.T) {
	opts := defaultOptions()
	opts.Persist = false
	store := memory.NewDocumentStore(frontmatter.New(), nil)
	p := NewPipeline(nil, NewValidator(store), opts)
	ctx := context.Background()

	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)
	require.NoError(t, p.TransitionToSynthesis(ctx, id, validSynthesis("s1", "b1")))

	snap, err := p.Context(id)
	require.NoError(t, err)
	assert.Empty(t, snap.Persisted)
}

func TestPipeline_BestEffortPersistence(t *testing.T) {
	opts := defaultOptions()
	opts.BestEffortPersistence = true
	p, store, rec := setupPipeline(t, opts)
	ctx := context.Background()

	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)

	store.FailSaves = true
	require.NoError(t, p.TransitionToSynthesis(ctx, id, validSynthesis("s1", "b1")))

	snap, err := p.Context(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StageSynthesis, snap.CurrentStage)
	assert.Empty(t, snap.Errors)
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "not persisted")
	assert.Equal(t, []string{"b1"}, snap.Persisted)
	assert.Contains(t, rec.types(), domain.EventPersistenceDegraded)

	// the unsaved synthesis still satisfies the draft's reference
	require.NoError(t, p.TransitionToCreation(ctx, id, validDraft("d1", "s1")))
}

func TestPipeline_StorageFailureBlocksTransition(t *testing.T) {
	p, store, rec := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)

	store.FailSaves = true
	syn := validSynthesis("s1", "b1")
	err = p.TransitionToSynthesis(ctx, id, syn)
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, syn.Meta.Status)

	snap, err := p.Context(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StageCollection, snap.CurrentStage)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, rec.types(), domain.EventStageError)
}

func TestPipeline_MultipleAdaptations(t *testing.T) {
	p, _, _ := setupPipeline(t, defaultOptions())
	ctx := context.Background()
	id := runToCreation(t, p, "x")

	require.NoError(t, p.TransitionToAdaptation(ctx, id, validAdaptation("xa1", "xd", domain.PlatformLinkedIn)))
	require.NoError(t, p.TransitionToAdaptation(ctx, id, validAdaptation("xa2", "xd", domain.PlatformTwitter)))

	snap, err := p.Context(id)
	require.NoError(t, err)
	assert.Contains(t, snap.Documents, domain.AdaptationKey(domain.PlatformLinkedIn))
	assert.Contains(t, snap.Documents, domain.AdaptationKey(domain.PlatformTwitter))

	res, err := p.CompletePipeline(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "xa2", res.FinalDocument.Head().ID)
}

func TestPipeline_CancelRetain(t *testing.T) {
	p, store, rec := setupPipeline(t, defaultOptions())
	ctx := context.Background()
	id := runToCreation(t, p, "r")

	require.NoError(t, p.CancelPipeline(ctx, id, "user abort"))
	assert.Empty(t, p.Active())
	assert.Contains(t, rec.types(), domain.EventPipelineCancelled)

	for _, docID := range []string{"rb", "rs", "rd"} {
		stored, err := store.Load(ctx, docID)
		require.NoError(t, err, docID)
		assert.Equal(t, domain.StatusCancelled, stored.Document.Head().Meta.Status)
		assert.Equal(t, 2, stored.Document.Head().Version)
	}

	err := p.TransitionToAdaptation(ctx, id, validAdaptation("ra", "rd", domain.PlatformTwitter))
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
}

func TestPipeline_CancelDelete(t *testing.T) {
	opts := defaultOptions()
	opts.CancelPolicy = domain.CancelDelete
	p, store, _ := setupPipeline(t, opts)
	ctx := context.Background()

	// a document from another run is left alone
	other, err := p.StartPipeline(ctx, validBrief("keep"))
	require.NoError(t, err)

	id := runToCreation(t, p, "r")
	require.NoError(t, p.CancelPipeline(ctx, id, ""))

	for _, docID := range []string{"rb", "rs", "rd"} {
		exists, err := store.Exists(ctx, docID)
		require.NoError(t, err)
		assert.False(t, exists, docID)
	}
	exists, err := store.Exists(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []string{other}, p.Active())
}

func TestPipeline_CancelReportsCleanupFailures(t *testing.T) {
	p, store, _ := setupPipeline(t, defaultOptions())
	ctx := context.Background()
	id := runToCreation(t, p, "f")

	store.FailSaves = true
	err := p.CancelPipeline(ctx, id, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, p.Active())
}

func TestPipeline_RetryStage(t *testing.T) {
	opts := defaultOptions()
	opts.MaxRetries = 3
	opts.RetryDelay = 100 * time.Millisecond
	p, _, rec := setupPipeline(t, opts)
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	ctx := context.Background()

	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.RetryStage(ctx, id, i))
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, delays)

	err = p.RetryStage(ctx, id, 3)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Len(t, delays, 3)
	assert.Contains(t, rec.types(), domain.EventRetryExhausted)

	snap, err := p.Context(id)
	require.NoError(t, err)
	require.Len(t, snap.Errors, 1)
	assert.ErrorIs(t, snap.Errors[0], domain.ErrRetriesExhausted)

	assert.ErrorIs(t, p.RetryStage(ctx, id, -1), domain.ErrInvalidInput)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{500 * time.Millisecond, 0, 500 * time.Millisecond},
		{500 * time.Millisecond, 3, 4 * time.Second},
		{500 * time.Millisecond, 7, MaxRetryDelay},
		{500 * time.Millisecond, 64, MaxRetryDelay},
		{500 * time.Millisecond, 1000, MaxRetryDelay},
		{time.Hour, 0, MaxRetryDelay},
		{0, 5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(tt.base, tt.attempt), "base=%s attempt=%d", tt.base, tt.attempt)
	}
}

func TestPipeline_RetryStage_LargeRetryBound(t *testing.T) {
	opts := defaultOptions()
	opts.MaxRetries = 200
	opts.RetryDelay = time.Second
	p, _, _ := setupPipeline(t, opts)
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	ctx := context.Background()
	id, err := p.StartPipeline(ctx, validBrief("b1"))
	require.NoError(t, err)

	for _, attempt := range []int{62, 63, 64, 150} {
		require.NoError(t, p.RetryStage(ctx, id, attempt))
	}
	for _, d := range delays {
		assert.Equal(t, MaxRetryDelay, d)
	}
}

func TestPipeline_RetryStage_Cancelled(t *testing.T) {
	p := NewPipeline(nil, nil, PipelineOptions{MaxRetries: 2, RetryDelay: time.Hour})
	id, err := p.StartPipeline(context.Background(), validBrief("b1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.RetryStage(ctx, id, 0), context.Canceled)
}

func TestPipeline_TransformDocument(t *testing.T) {
	p, _, _ := setupPipeline(t, defaultOptions())
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}

	brief := validBrief("b1")
	brief.Meta.Tags = []string{"go"}
	brief.Meta.Methodologies = []string{"signal-to-noise"}
	brief.Contradictions = []domain.Contradiction{{Point: "Is small always faster?", Severity: "low"}}

	doc, err := p.TransformDocument(brief, domain.TypeKnowledgeSynthesis, domain.TransformOptions{Tags: []string{"teams", "go"}})
	require.NoError(t, err)
	syn, ok := doc.(*domain.KnowledgeSynthesis)
	require.True(t, ok)
	assert.Equal(t, "gen-1", syn.ID)
	assert.Equal(t, domain.TypeKnowledgeSynthesis, syn.Type)
	assert.Equal(t, "b1", syn.BriefID)
	assert.Equal(t, "delivery", syn.Concept)
	assert.Equal(t, 3, syn.DepthLevel)
	assert.Equal(t, []string{"Is small always faster?"}, syn.Questions)
	assert.Equal(t, fixed, syn.Created)
	assert.Equal(t, 0, syn.Version)
	assert.Equal(t, domain.AgentScholar, syn.Meta.Agent)
	assert.Equal(t, domain.StatusPending, syn.Meta.Status)
	assert.Equal(t, []string{"go", "teams"}, syn.Meta.Tags)
	assert.Equal(t, []string{"signal-to-noise"}, syn.Meta.Methodologies)

	full := validSynthesis("s1", "b1")
	doc, err = p.TransformDocument(full, domain.TypeContentDraft, domain.TransformOptions{ID: "d1"})
	require.NoError(t, err)
	draft := doc.(*domain.ContentDraft)
	assert.Equal(t, "d1", draft.ID)
	assert.Equal(t, "s1", draft.SynthesisID)
	assert.Equal(t, "delivery", draft.Title)
	assert.Equal(t, []string{"What", "How", "Why"}, draft.Structure.Sections)
	assert.Equal(t, domain.AgentCreator, draft.Meta.Agent)

	doc, err = p.TransformDocument(draft, domain.TypePlatformAdaptation, domain.TransformOptions{Platform: domain.PlatformTwitter})
	require.NoError(t, err)
	adaptation := doc.(*domain.PlatformAdaptation)
	assert.Equal(t, "d1", adaptation.DraftID)
	assert.Equal(t, domain.PlatformTwitter, adaptation.Platform)
	assert.Equal(t, domain.PlatformTwitter.Rules(), adaptation.Rules)

	_, err = p.TransformDocument(draft, domain.TypePlatformAdaptation, domain.TransformOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = p.TransformDocument(brief, domain.TypeContentDraft, domain.TransformOptions{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedTransform)

	_, err = p.TransformDocument(nil, domain.TypeContentDraft, domain.TransformOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPipeline_TransformedSkeletonNeedsContent(t *testing.T) {
	p, _, _ := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	brief := validBrief("b1")
	id, err := p.StartPipeline(ctx, brief)
	require.NoError(t, err)

	doc, err := p.TransformDocument(brief, domain.TypeKnowledgeSynthesis, domain.TransformOptions{ID: "s1"})
	require.NoError(t, err)
	syn := doc.(*domain.KnowledgeSynthesis)

	// the skeleton has no layers yet
	err = p.TransitionToSynthesis(ctx, id, syn)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	syn.Layers = []domain.Layer{{Level: 1, Title: "a"}, {Level: 2, Title: "b"}, {Level: 3, Title: "c"}}
	syn.Confidence = 8
	syn.TeachingReady = true
	require.NoError(t, p.TransitionToSynthesis(ctx, id, syn))
}

func TestPipeline_ConcurrentRuns(t *testing.T) {
	p, store, _ := setupPipeline(t, defaultOptions())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			prefix := fmt.Sprintf("run%d-", n)
			id, err := p.StartPipeline(ctx, validBrief(prefix+"b"))
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, p.TransitionToSynthesis(ctx, id, validSynthesis(prefix+"s", prefix+"b")))
			assert.NoError(t, p.TransitionToCreation(ctx, id, validDraft(prefix+"d", prefix+"s")))
			assert.NoError(t, p.TransitionToAdaptation(ctx, id, validAdaptation(prefix+"a", prefix+"d", domain.PlatformWeChat)))
			res, err := p.CompletePipeline(ctx, id)
			if assert.NoError(t, err) {
				assert.True(t, res.Success)
			}
		}(i)
	}
	wg.Wait()

	refs, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, refs, 32)
	assert.Empty(t, p.Active())
}
