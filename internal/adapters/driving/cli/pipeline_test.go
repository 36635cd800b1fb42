package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flcm/internal/app"
	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
)

// writeDoc encodes doc into dir/name and returns the path.
func writeDoc(t *testing.T, a *app.App, dir, name string, doc domain.Document) string {
	t.Helper()
	data, err := a.Documents.Encode(doc, "")
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeManifest(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestPipelineCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range pipelineCmd.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"run", "transform"}, names)
}

func TestPipelineRunCmd(t *testing.T) {
	a := setupTestServices(t)
	dir := t.TempDir()
	writeDoc(t, a, dir, "brief.md", testBrief("b1"))
	writeDoc(t, a, dir, "synthesis.md", testSynthesis("s1", "b1"))
	writeDoc(t, a, dir, "draft.md", testDraft("d1", "s1"))
	writeDoc(t, a, dir, "linkedin.md", testAdaptation("a1", "d1", domain.PlatformLinkedIn))
	writeDoc(t, a, dir, "twitter.md", testAdaptation("a2", "d1", domain.PlatformTwitter))
	manifest := writeManifest(t, dir,
		"brief: brief.md",
		"synthesis: synthesis.md",
		"draft: draft.md",
		"adaptations:",
		"  - linkedin.md",
		"  - twitter.md",
	)

	out, err := execute(t, "pipeline", "run", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "synthesis   s1")
	assert.Contains(t, out, "adaptation  a2")
	assert.Contains(t, out, "Completed: a2 (platform-adaptation)")
	assert.Empty(t, a.Pipeline.Active())

	refs, err := a.Documents.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, refs, 5)
}

func TestPipelineRunCmd_DryRun(t *testing.T) {
	a := setupTestServices(t)
	dir := t.TempDir()
	writeDoc(t, a, dir, "brief.md", testBrief("b1"))
	writeDoc(t, a, dir, "synthesis.md", testSynthesis("s1", "b1"))
	writeDoc(t, a, dir, "draft.md", testDraft("d1", "s1"))
	writeDoc(t, a, dir, "linkedin.md", testAdaptation("a1", "d1", domain.PlatformLinkedIn))
	manifest := writeManifest(t, dir,
		"brief: brief.md",
		"synthesis: synthesis.md",
		"draft: draft.md",
		"adaptations: [linkedin.md]",
	)

	out, err := execute(t, "pipeline", "run", "--dry-run", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "dry run: nothing is written")
	assert.Contains(t, out, "Completed: a1 (platform-adaptation)")

	refs, err := a.Documents.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestPipelineRunCmd_DryRunValidates(t *testing.T) {
	a := setupTestServices(t)
	dir := t.TempDir()
	writeDoc(t, a, dir, "brief.md", testBrief("b1"))
	writeDoc(t, a, dir, "synthesis.md", testSynthesis("s1", "other"))
	writeDoc(t, a, dir, "draft.md", testDraft("d1", "s1"))
	writeDoc(t, a, dir, "linkedin.md", testAdaptation("a1", "d1", domain.PlatformLinkedIn))
	manifest := writeManifest(t, dir,
		"brief: brief.md",
		"synthesis: synthesis.md",
		"draft: draft.md",
		"adaptations: [linkedin.md]",
	)

	out, err := execute(t, "pipeline", "run", "--dry-run", manifest)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Contains(t, out, "REFERENCE_MISMATCH:briefId")

	refs, err := a.Documents.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestPipelineRunCmd_DryRunUnavailable(t *testing.T) {
	a := setupTestServices(t)
	s := servicesFor(a)
	s.DryRun = nil
	SetServices(s)
	dir := t.TempDir()
	writeDoc(t, a, dir, "brief.md", testBrief("b1"))
	writeDoc(t, a, dir, "synthesis.md", testSynthesis("s1", "b1"))
	writeDoc(t, a, dir, "draft.md", testDraft("d1", "s1"))
	writeDoc(t, a, dir, "linkedin.md", testAdaptation("a1", "d1", domain.PlatformLinkedIn))
	manifest := writeManifest(t, dir,
		"brief: brief.md",
		"synthesis: synthesis.md",
		"draft: draft.md",
		"adaptations: [linkedin.md]",
	)

	_, err := execute(t, "pipeline", "run", "--dry-run", manifest)
	assert.ErrorContains(t, err, "dry runs are not available")
}

func TestPipelineRunCmd_ValidationFailureCancels(t *testing.T) {
	a := setupTestServices(t)
	dir := t.TempDir()
	writeDoc(t, a, dir, "brief.md", testBrief("b1"))
	writeDoc(t, a, dir, "synthesis.md", testSynthesis("s1", "other"))
	writeDoc(t, a, dir, "draft.md", testDraft("d1", "s1"))
	writeDoc(t, a, dir, "linkedin.md", testAdaptation("a1", "d1", domain.PlatformLinkedIn))
	manifest := writeManifest(t, dir,
		"brief: brief.md",
		"synthesis: synthesis.md",
		"draft: draft.md",
		"adaptations: [linkedin.md]",
	)

	out, err := execute(t, "pipeline", "run", manifest)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Contains(t, out, "s1 failed validation")
	assert.Contains(t, out, "REFERENCE_MISMATCH:briefId")
	assert.Empty(t, a.Pipeline.Active())

	stored, err := a.Documents.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Document.Head().Meta.Status)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	t.Run("resolves relative paths", func(t *testing.T) {
		path := writeManifest(t, dir,
			"brief: in/brief.md",
			"synthesis: /abs/synthesis.md",
			"draft: draft.md",
			"adaptations: [a.md]",
		)
		m, err := loadManifest(path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "in", "brief.md"), m.Brief)
		assert.Equal(t, "/abs/synthesis.md", m.Synthesis)
		assert.Equal(t, []string{filepath.Join(dir, "a.md")}, m.Adaptations)
	})

	t.Run("missing stage", func(t *testing.T) {
		path := writeManifest(t, dir, "brief: brief.md", "draft: draft.md")
		_, err := loadManifest(path)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("not yaml", func(t *testing.T) {
		path := writeManifest(t, dir, "brief: [unterminated")
		_, err := loadManifest(path)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPipelineRunCmd_WrongDocumentType(t *testing.T) {
	a := setupTestServices(t)
	dir := t.TempDir()
	writeDoc(t, a, dir, "brief.md", testBrief("b1"))
	manifest := writeManifest(t, dir,
		"brief: brief.md",
		"synthesis: brief.md",
		"draft: brief.md",
		"adaptations: [brief.md]",
	)

	_, err := execute(t, "pipeline", "run", manifest)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Empty(t, a.Pipeline.Active())
}

// retryCounter fails every retry after limit attempts.
type retryCounter struct {
	driving.PipelineService
	calls []int
	limit int
}

func (r *retryCounter) RetryStage(_ context.Context, _ string, retryCount int) error {
	r.calls = append(r.calls, retryCount)
	if retryCount >= r.limit {
		return domain.ErrRetriesExhausted
	}
	return nil
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	storageErr := &domain.StorageError{Op: "write", Err: errors.New("disk full")}

	t.Run("recovers after transient failures", func(t *testing.T) {
		counter := &retryCounter{limit: 3}
		attempts := 0
		err := withRetry(ctx, counter, "run", func() error {
			attempts++
			if attempts < 3 {
				return storageErr
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, counter.calls)
	})

	t.Run("gives up at the bound", func(t *testing.T) {
		counter := &retryCounter{limit: 2}
		err := withRetry(ctx, counter, "run", func() error { return storageErr })
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
		assert.Equal(t, []int{0, 1, 2}, counter.calls)
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		counter := &retryCounter{limit: 3}
		err := withRetry(ctx, counter, "run", func() error { return domain.ErrInvalidTransition })
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Empty(t, counter.calls)
	})
}

func TestPipelineTransformCmd(t *testing.T) {
	a := setupTestServices(t)
	saveDocs(t, a, testBrief("b1"))

	out, err := execute(t, "pipeline", "transform", "b1", "--to", "synthesis", "--id", "s9", "--tag", "teams")
	require.NoError(t, err)
	assert.Contains(t, out, "flcm_id: s9")
	assert.Contains(t, out, "flcm_type: knowledge-synthesis")
	assert.Contains(t, out, "brief_id: b1")

	path := filepath.Join(t.TempDir(), "s9.md")
	out, err = execute(t, "pipeline", "transform", "b1", "--to", "synthesis", "--id", "s9", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "s9 written to "+path)
	assert.FileExists(t, path)

	_, err = execute(t, "pipeline", "transform", "b1", "--to", "adaptation")
	assert.ErrorIs(t, err, domain.ErrUnsupportedTransform)
}
