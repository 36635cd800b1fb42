package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
	"github.com/custodia-labs/flcm/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.PipelineService = (*Pipeline)(nil)

// PipelineOptions configures the orchestrator.
type PipelineOptions struct {
	// Validate checks every document at its stage boundary.
	Validate bool

	// Persist saves every accepted document.
	Persist bool

	// BestEffortPersistence logs failed saves after the brief and keeps the
	// run going in memory.
	BestEffortPersistence bool

	// MaxRetries bounds RetryStage.
	MaxRetries int

	// RetryDelay is the base backoff, doubled per attempt.
	RetryDelay time.Duration

	// CancelPolicy decides the fate of persisted documents on cancel.
	CancelPolicy domain.CancelPolicy
}

// PipelineOptionsFrom converts stored settings into orchestrator options.
func PipelineOptionsFrom(s domain.PipelineSettings) PipelineOptions {
	return PipelineOptions{
		Validate:              s.Validate,
		Persist:               s.Persist,
		BestEffortPersistence: s.BestEffort,
		MaxRetries:            s.MaxRetries,
		RetryDelay:            s.RetryDelay,
		CancelPolicy:          s.CancelPolicy,
	}
}

// run is one live pipeline context and the lock serialising its operations.
type run struct {
	mu   sync.Mutex
	ctx  domain.PipelineContext
	done bool
}

// Pipeline is the stage orchestrator.
type Pipeline struct {
	store     driven.DocumentStore
	validator driven.DocumentValidator
	opts      PipelineOptions

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	mu    sync.Mutex
	runs  map[string]*run
	sinks []driven.EventSink
}

// NewPipeline creates an orchestrator. store may be nil when Persist is
// off, and validator may be nil when Validate is off.
func NewPipeline(store driven.DocumentStore, validator driven.DocumentValidator, opts PipelineOptions) *Pipeline {
	if opts.CancelPolicy == "" {
		opts.CancelPolicy = domain.CancelRetain
	}
	return &Pipeline{
		store:     store,
		validator: validator,
		opts:      opts,
		now:       time.Now,
		sleep:     sleepContext,
		newID:     uuid.NewString,
		runs:      make(map[string]*run),
	}
}

// Subscribe registers a sink for lifecycle events.
func (p *Pipeline) Subscribe(sink driven.EventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, sink)
}

// StartPipeline opens a run for brief and returns its context id.
func (p *Pipeline) StartPipeline(ctx context.Context, brief *domain.ContentBrief) (string, error) {
	if brief == nil {
		return "", fmt.Errorf("%w: nil brief", domain.ErrInvalidInput)
	}
	id := p.newID()

	if p.opts.Validate && p.validator != nil {
		if res := p.validator.Validate(ctx, brief); !res.Valid {
			return "", &domain.ValidationFailedError{DocumentID: brief.ID, Result: res}
		}
	}

	r := &run{ctx: domain.PipelineContext{
		ID:           id,
		StartTime:    p.now(),
		CurrentStage: domain.StageCollection,
		Documents:    map[string]domain.Document{domain.KeyBrief: brief},
		Metadata:     map[string]string{},
		Latest:       domain.KeyBrief,
	}}

	if p.persisting() {
		status := brief.Meta.Status
		brief.Meta.Status = domain.StatusProcessed
		if _, err := p.store.Save(ctx, brief, RenderBody(brief)); err != nil {
			brief.Meta.Status = status
			return "", fmt.Errorf("save brief %q: %w", brief.ID, err)
		}
		r.ctx.Persisted = append(r.ctx.Persisted, brief.ID)
	}

	p.mu.Lock()
	p.runs[id] = r
	p.mu.Unlock()

	logger.With("run", id).Debug("started with brief %s", brief.ID)
	p.emit(domain.PipelineEvent{Type: domain.EventPipelineStarted, ContextID: id, To: domain.StageCollection, DocumentID: brief.ID})
	return id, nil
}

// TransitionToSynthesis moves a run from collection to synthesis.
func (p *Pipeline) TransitionToSynthesis(ctx context.Context, id string, doc *domain.KnowledgeSynthesis) error {
	if doc == nil {
		return fmt.Errorf("%w: nil synthesis", domain.ErrInvalidInput)
	}
	return p.transition(ctx, id, domain.StageSynthesis, doc, domain.KeySynthesis, upstream{"briefId", domain.KeyBrief, doc.BriefID})
}

// TransitionToCreation moves a run from synthesis to creation.
func (p *Pipeline) TransitionToCreation(ctx context.Context, id string, doc *domain.ContentDraft) error {
	if doc == nil {
		return fmt.Errorf("%w: nil draft", domain.ErrInvalidInput)
	}
	doc.FillWordCount()
	return p.transition(ctx, id, domain.StageCreation, doc, domain.KeyDraft, upstream{"synthesisId", domain.KeySynthesis, doc.SynthesisID})
}

// TransitionToAdaptation moves a run into adaptation, or adds another
// platform while already there.
func (p *Pipeline) TransitionToAdaptation(ctx context.Context, id string, doc *domain.PlatformAdaptation) error {
	if doc == nil {
		return fmt.Errorf("%w: nil adaptation", domain.ErrInvalidInput)
	}
	return p.transition(ctx, id, domain.StageAdaptation, doc, domain.AdaptationKey(doc.Platform), upstream{"draftId", domain.KeyDraft, doc.DraftID})
}

// upstream names the reference a document must carry to the run's
// previous-stage document.
type upstream struct {
	field string
	key   string
	id    string
}

func (p *Pipeline) transition(ctx context.Context, id string, to domain.Stage, doc domain.Document, key string, up upstream) error {
	r, err := p.lookup("transition", id)
	if err != nil {
		return err
	}

	var events []domain.PipelineEvent
	defer func() { p.emit(events...) }()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return &domain.PipelineError{Op: "transition", ContextID: id, Kind: domain.ErrContextNotFound}
	}

	from := r.ctx.CurrentStage
	legal := from.Next() == to || (to == domain.StageAdaptation && from == domain.StageAdaptation)
	if !legal {
		return &domain.PipelineError{
			Op:        "transition",
			ContextID: id,
			Kind:      domain.ErrInvalidTransition,
			Detail:    fmt.Sprintf("%s -> %s", from, to),
		}
	}

	h := doc.Head()
	res := domain.ValidationResult{Valid: true, Score: 100}
	if p.opts.Validate && p.validator != nil {
		res = p.validator.Validate(ctx, doc)
	}
	if prev, ok := r.ctx.Documents[up.key]; ok {
		if prev.Head().ID == up.id {
			// the run itself holds the upstream document even if it was never stored
			res = dropCode(res, domain.Code(domain.CodeMissingReference, up.field))
		} else {
			res.Valid = false
			res.Errors = append(res.Errors, domain.ValidationError{
				Field:    up.field,
				Code:     domain.Code(domain.CodeReferenceMismatch, up.field),
				Message:  fmt.Sprintf("%s %q does not match the run's %s %q", up.field, up.id, up.key, prev.Head().ID),
				Severity: domain.SeverityError,
			})
		}
	}
	if !res.Valid {
		verr := &domain.ValidationFailedError{DocumentID: h.ID, Result: res}
		r.ctx.Errors = append(r.ctx.Errors, verr)
		events = append(events, domain.PipelineEvent{Type: domain.EventStageError, ContextID: id, From: from, To: to, DocumentID: h.ID, Err: verr})
		return verr
	}
	for _, w := range res.Warnings {
		r.ctx.Warnings = append(r.ctx.Warnings, fmt.Sprintf("%s: %s %s", h.ID, w.Code, w.Message))
	}

	persisted := false
	if p.persisting() {
		status := h.Meta.Status
		h.Meta.Status = domain.StatusProcessed
		_, err := p.store.Save(ctx, doc, RenderBody(doc))
		switch {
		case err == nil:
			persisted = true
		case p.opts.BestEffortPersistence:
			logger.With("run", id).Debug("could not persist %s, continuing in memory: %v", h.ID, err)
			r.ctx.Warnings = append(r.ctx.Warnings, fmt.Sprintf("%s: not persisted: %v", h.ID, err))
			events = append(events, domain.PipelineEvent{Type: domain.EventPersistenceDegraded, ContextID: id, From: from, To: to, DocumentID: h.ID, Err: err})
		default:
			h.Meta.Status = status
			r.ctx.Errors = append(r.ctx.Errors, err)
			events = append(events, domain.PipelineEvent{Type: domain.EventStageError, ContextID: id, From: from, To: to, DocumentID: h.ID, Err: err})
			return err
		}
	}

	r.ctx.Documents[key] = doc
	r.ctx.Latest = key
	r.ctx.CurrentStage = to
	if persisted && !slices.Contains(r.ctx.Persisted, h.ID) {
		r.ctx.Persisted = append(r.ctx.Persisted, h.ID)
	}

	logger.With("run", id).Debug("%s -> %s with %s", from, to, h.ID)
	events = append(events, domain.PipelineEvent{Type: domain.EventStageTransition, ContextID: id, From: from, To: to, DocumentID: h.ID})
	return nil
}

// CompletePipeline finishes a run that has reached adaptation.
func (p *Pipeline) CompletePipeline(_ context.Context, id string) (*domain.RunResult, error) {
	r, err := p.lookup("complete", id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return nil, &domain.PipelineError{Op: "complete", ContextID: id, Kind: domain.ErrContextNotFound}
	}
	from := r.ctx.CurrentStage
	if from.Next() != domain.StageComplete {
		r.mu.Unlock()
		return nil, &domain.PipelineError{
			Op:        "complete",
			ContextID: id,
			Kind:      domain.ErrInvalidTransition,
			Detail:    fmt.Sprintf("%s -> %s", from, domain.StageComplete),
		}
	}
	r.ctx.CurrentStage = domain.StageComplete
	r.done = true
	snap := r.ctx.Snapshot()
	r.mu.Unlock()

	p.forget(id)

	result := &domain.RunResult{
		Success:       len(snap.Errors) == 0,
		Context:       snap,
		FinalDocument: snap.Documents[snap.Latest],
		Duration:      p.now().Sub(snap.StartTime),
	}
	if !result.Success {
		result.Errors = snap.Errors
	}

	logger.With("run", id).Debug("completed in %s (success=%t)", result.Duration, result.Success)
	p.emit(domain.PipelineEvent{Type: domain.EventPipelineCompleted, ContextID: id, From: from, To: domain.StageComplete})
	return result, nil
}

// CancelPipeline discards a run. Documents it persisted are re-saved with
// status cancelled or deleted, per the cancel policy. Cleanup failures are
// joined and returned; the run is discarded regardless.
func (p *Pipeline) CancelPipeline(ctx context.Context, id, reason string) error {
	r, err := p.lookup("cancel", id)
	if err != nil {
		return err
	}
	p.forget(id)

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return &domain.PipelineError{Op: "cancel", ContextID: id, Kind: domain.ErrContextNotFound}
	}
	r.done = true
	cause := domain.ErrPipelineCancelled
	if reason != "" {
		cause = fmt.Errorf("%w: %s", domain.ErrPipelineCancelled, reason)
	}
	r.ctx.Errors = append(r.ctx.Errors, cause)
	stage := r.ctx.CurrentStage
	persisted := slices.Clone(r.ctx.Persisted)
	r.mu.Unlock()

	var errs []error
	if p.store != nil {
		for _, docID := range persisted {
			if err := p.applyCancelPolicy(ctx, docID); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", docID, err))
			}
		}
	}

	logger.With("run", id).Debug("cancelled at %s (%s policy, %d documents)", stage, p.opts.CancelPolicy, len(persisted))
	p.emit(domain.PipelineEvent{Type: domain.EventPipelineCancelled, ContextID: id, From: stage, Err: cause})
	return errors.Join(errs...)
}

func (p *Pipeline) applyCancelPolicy(ctx context.Context, id string) error {
	if p.opts.CancelPolicy == domain.CancelDelete {
		_, err := p.store.Delete(ctx, id)
		return err
	}
	stored, err := p.store.Load(ctx, id)
	if err != nil {
		return err
	}
	stored.Document.Head().Meta.Status = domain.StatusCancelled
	_, err = p.store.Save(ctx, stored.Document, stored.Body)
	return err
}

// RetryStage waits base*2^retryCount before the caller re-attempts a
// transition. At the retry bound it records the failure and returns
// ErrRetriesExhausted instead.
func (p *Pipeline) RetryStage(ctx context.Context, id string, retryCount int) error {
	r, err := p.lookup("retry", id)
	if err != nil {
		return err
	}
	if retryCount < 0 {
		return fmt.Errorf("%w: negative retry count", domain.ErrInvalidInput)
	}

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return &domain.PipelineError{Op: "retry", ContextID: id, Kind: domain.ErrContextNotFound}
	}
	stage := r.ctx.CurrentStage
	if retryCount >= p.opts.MaxRetries {
		perr := &domain.PipelineError{
			Op:        "retry",
			ContextID: id,
			Kind:      domain.ErrRetriesExhausted,
			Detail:    fmt.Sprintf("%d of %d attempts used at %s", retryCount, p.opts.MaxRetries, stage),
		}
		r.ctx.Errors = append(r.ctx.Errors, perr)
		r.mu.Unlock()
		p.emit(domain.PipelineEvent{Type: domain.EventRetryExhausted, ContextID: id, From: stage, Attempt: retryCount, Err: perr})
		return perr
	}
	r.mu.Unlock()

	delay := backoff(p.opts.RetryDelay, retryCount)
	logger.With("run", id).Debug("retry %d at %s in %s", retryCount+1, stage, delay)
	p.emit(domain.PipelineEvent{Type: domain.EventRetryScheduled, ContextID: id, From: stage, Attempt: retryCount + 1})
	return p.sleep(ctx, delay)
}

// TransformDocument derives the next-stage document from source and fills
// the identity, timestamp and metadata fields the transform leaves blank.
func (p *Pipeline) TransformDocument(source domain.Document, target domain.DocumentType, opts domain.TransformOptions) (domain.Document, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil source", domain.ErrInvalidInput)
	}

	now := p.now().UTC()
	h := domain.Header{
		ID:       opts.ID,
		Type:     target,
		Created:  now,
		Modified: now,
		Meta: domain.Metadata{
			Agent:  target.Agent(),
			Status: domain.StatusPending,
		},
	}
	if h.ID == "" {
		h.ID = p.newID()
	}

	switch src := source.(type) {
	case *domain.ContentBrief:
		if target == domain.TypeKnowledgeSynthesis {
			return BriefToSynthesis(src, opts).build(h), nil
		}
	case *domain.KnowledgeSynthesis:
		if target == domain.TypeContentDraft {
			return SynthesisToDraft(src, opts).build(h), nil
		}
	case *domain.ContentDraft:
		if target == domain.TypePlatformAdaptation {
			if !opts.Platform.IsValid() {
				return nil, fmt.Errorf("%w: adaptation needs a valid platform, got %q", domain.ErrInvalidInput, opts.Platform)
			}
			return DraftToAdaptation(src, opts.Platform, opts).build(h), nil
		}
	}
	return nil, fmt.Errorf("%w: %s to %s", domain.ErrUnsupportedTransform, source.Head().Type, target)
}

// Context returns a snapshot of a live run.
func (p *Pipeline) Context(id string) (domain.PipelineContext, error) {
	r, err := p.lookup("context", id)
	if err != nil {
		return domain.PipelineContext{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx.Snapshot(), nil
}

// Active returns the ids of live runs in sorted order.
func (p *Pipeline) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (p *Pipeline) lookup(op, id string) (*run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runs[id]
	if !ok {
		return nil, &domain.PipelineError{Op: op, ContextID: id, Kind: domain.ErrContextNotFound}
	}
	return r, nil
}

func (p *Pipeline) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.runs, id)
}

func (p *Pipeline) persisting() bool {
	return p.opts.Persist && p.store != nil
}

func (p *Pipeline) emit(events ...domain.PipelineEvent) {
	if len(events) == 0 {
		return
	}
	p.mu.Lock()
	sinks := slices.Clone(p.sinks)
	p.mu.Unlock()
	for _, e := range events {
		if e.At.IsZero() {
			e.At = p.now()
		}
		for _, s := range sinks {
			s.Emit(e)
		}
	}
}

// dropCode removes errors carrying code and recomputes validity.
func dropCode(res domain.ValidationResult, code string) domain.ValidationResult {
	kept := res.Errors[:0:0]
	for _, e := range res.Errors {
		if e.Code != code {
			kept = append(kept, e)
		}
	}
	res.Errors = kept
	res.Valid = len(kept) == 0
	return res
}

// MaxRetryDelay caps the wait between retries.
const MaxRetryDelay = time.Minute

// backoff returns base doubled attempt times, capped at MaxRetryDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt && d < MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, MaxRetryDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
