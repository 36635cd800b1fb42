package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run documents through the pipeline",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run [manifest.yaml]",
	Short: "Run one pipeline from a manifest of documents",
	Long: `Drive a whole run from a YAML manifest naming one document file per stage.
Paths are relative to the manifest.

  brief: inbox/brief.md
  synthesis: inbox/synthesis.md
  draft: inbox/draft.md
  adaptations:
    - inbox/linkedin.md
    - inbox/twitter.md

Failed saves are retried with backoff. Any other failure cancels the run.
With --dry-run every document is validated and held in memory, and nothing
is written under the storage root.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineRun,
}

var pipelineTransformCmd = &cobra.Command{
	Use:   "transform [source-id]",
	Short: "Derive the next-stage skeleton from a stored document",
	Long: `Derive a knowledge synthesis from a brief, a draft from a synthesis, or a
platform adaptation from a draft, and print it as a document file.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineTransform,
}

var (
	runDryRun bool

	transformTo       string
	transformPlatform string
	transformID       string
	transformTags     []string
	transformOut      string
)

func init() {
	pipelineRunCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "validate the run without writing documents")

	f := pipelineTransformCmd.Flags()
	f.StringVar(&transformTo, "to", "", "target type (synthesis, draft or adaptation)")
	f.StringVarP(&transformPlatform, "platform", "p", "", "target platform for adaptations")
	f.StringVar(&transformID, "id", "", "id for the new document (generated when empty)")
	f.StringSliceVar(&transformTags, "tag", nil, "extra tag (repeatable)")
	f.StringVarP(&transformOut, "out", "o", "", "write to file instead of stdout")
	_ = pipelineTransformCmd.MarkFlagRequired("to")

	pipelineCmd.AddCommand(pipelineRunCmd)
	pipelineCmd.AddCommand(pipelineTransformCmd)
	rootCmd.AddCommand(pipelineCmd)
}

// runManifest lists the document files for one run.
type runManifest struct {
	Brief       string   `yaml:"brief"`
	Synthesis   string   `yaml:"synthesis"`
	Draft       string   `yaml:"draft"`
	Adaptations []string `yaml:"adaptations"`
}

func loadManifest(path string) (*runManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m runManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", domain.ErrInvalidInput, err)
	}
	if m.Brief == "" || m.Synthesis == "" || m.Draft == "" || len(m.Adaptations) == 0 {
		return nil, fmt.Errorf("%w: manifest needs brief, synthesis, draft and at least one adaptation", domain.ErrInvalidInput)
	}
	base := filepath.Dir(path)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	m.Brief = resolve(m.Brief)
	m.Synthesis = resolve(m.Synthesis)
	m.Draft = resolve(m.Draft)
	for i, a := range m.Adaptations {
		m.Adaptations[i] = resolve(a)
	}
	return &m, nil
}

// decodeAs reads a document file and checks it is a T.
func decodeAs[T domain.Document](path string) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, _, err := documentService.Decode(data)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	typed, ok := doc.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds a %s", domain.ErrUnsupportedType, path, doc.Head().Type)
	}
	return typed, nil
}

type runDocs struct {
	brief       *domain.ContentBrief
	synthesis   *domain.KnowledgeSynthesis
	draft       *domain.ContentDraft
	adaptations []*domain.PlatformAdaptation
}

func decodeManifest(m *runManifest) (*runDocs, error) {
	var docs runDocs
	var err error
	if docs.brief, err = decodeAs[*domain.ContentBrief](m.Brief); err != nil {
		return nil, err
	}
	if docs.synthesis, err = decodeAs[*domain.KnowledgeSynthesis](m.Synthesis); err != nil {
		return nil, err
	}
	if docs.draft, err = decodeAs[*domain.ContentDraft](m.Draft); err != nil {
		return nil, err
	}
	for _, path := range m.Adaptations {
		a, err := decodeAs[*domain.PlatformAdaptation](path)
		if err != nil {
			return nil, err
		}
		docs.adaptations = append(docs.adaptations, a)
	}
	return &docs, nil
}

func runPipelineRun(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}
	if err := requirePipeline(); err != nil {
		return err
	}

	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	docs, err := decodeManifest(m)
	if err != nil {
		return err
	}

	svc := pipelineService
	if runDryRun {
		if dryRunFactory == nil {
			return errors.New("dry runs are not available")
		}
		svc = dryRunFactory()
	}

	ctx := cmd.Context()
	id, err := svc.StartPipeline(ctx, docs.brief)
	if err != nil {
		return reportFailure(cmd, "start", err)
	}
	cmd.Printf("%s %s\n", ui.Title.Render("Pipeline"), id)
	if runDryRun {
		cmd.Println(ui.Muted.Render("  dry run: nothing is written"))
	}
	cmd.Printf("  collection  %s\n", docs.brief.ID)

	steps := []struct {
		stage domain.Stage
		docID string
		apply func() error
	}{
		{domain.StageSynthesis, docs.synthesis.ID, func() error {
			return svc.TransitionToSynthesis(ctx, id, docs.synthesis)
		}},
		{domain.StageCreation, docs.draft.ID, func() error {
			return svc.TransitionToCreation(ctx, id, docs.draft)
		}},
	}
	for _, a := range docs.adaptations {
		steps = append(steps, struct {
			stage domain.Stage
			docID string
			apply func() error
		}{domain.StageAdaptation, a.ID, func() error {
			return svc.TransitionToAdaptation(ctx, id, a)
		}})
	}

	for _, step := range steps {
		if err := withRetry(ctx, svc, id, step.apply); err != nil {
			cancelErr := svc.CancelPipeline(ctx, id, err.Error())
			return reportFailure(cmd, string(step.stage), errors.Join(err, cancelErr))
		}
		cmd.Printf("  %-11s %s\n", step.stage, step.docID)
	}

	result, err := svc.CompletePipeline(ctx, id)
	if err != nil {
		return reportFailure(cmd, "complete", err)
	}

	for _, w := range result.Context.Warnings {
		cmd.Printf("  %s %s\n", ui.Warning.Render("warning:"), w)
	}
	final := result.FinalDocument.Head()
	cmd.Printf("%s %s (%s) in %s\n",
		ui.Success.Render("Completed:"), final.ID, final.Type, result.Duration.Round(time.Millisecond))
	return nil
}

// withRetry repeats op while it fails with a storage error, backing off
// through RetryStage until the retry bound.
func withRetry(ctx context.Context, svc driving.PipelineService, id string, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || !errors.Is(err, domain.ErrStorage) {
			return err
		}
		if rerr := svc.RetryStage(ctx, id, attempt); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
}

func reportFailure(cmd *cobra.Command, stage string, err error) error {
	var verr *domain.ValidationFailedError
	if errors.As(err, &verr) {
		cmd.Printf("%s %s failed validation\n", ui.Error.Render("✗"), verr.DocumentID)
		printIssues(cmd, verr.Result)
	}
	return fmt.Errorf("pipeline %s: %w", stage, err)
}

func runPipelineTransform(cmd *cobra.Command, args []string) error {
	if err := requireDocuments(); err != nil {
		return err
	}
	if err := requirePipeline(); err != nil {
		return err
	}

	target, err := domain.ParseDocumentType(transformTo)
	if err != nil {
		return err
	}

	source, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	doc, err := pipelineService.TransformDocument(source.Document, target, domain.TransformOptions{
		ID:       transformID,
		Platform: domain.Platform(transformPlatform),
		Tags:     transformTags,
	})
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}

	data, err := documentService.Encode(doc, "")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if transformOut == "" {
		cmd.Print(string(data))
		return nil
	}
	if err := os.WriteFile(transformOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", transformOut, err)
	}
	cmd.Printf("%s written to %s\n", doc.Head().ID, transformOut)
	return nil
}
