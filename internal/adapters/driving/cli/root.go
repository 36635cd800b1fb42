// Package cli provides the flcm command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/flcm/internal/core/ports/driving"
	"github.com/custodia-labs/flcm/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services bundles the driving ports the commands call.
type Services struct {
	Document driving.DocumentService
	Pipeline driving.PipelineService
	Settings driving.SettingsService

	// IndexSync builds the watcher-driven index updater on demand.
	IndexSync func() (driving.IndexSyncService, error)

	// DryRun builds a pipeline that keeps its documents in memory.
	DryRun func() driving.PipelineService

	// Root is the absolute storage root.
	Root string

	// Close releases the storage backends.
	Close func() error
}

// Opener builds the services for a storage root.
type Opener func(root string) (*Services, error)

var (
	documentService  driving.DocumentService
	pipelineService  driving.PipelineService
	settingsService  driving.SettingsService
	indexSyncFactory func() (driving.IndexSyncService, error)
	dryRunFactory    func() driving.PipelineService
	storageRoot      string
	closeServices    func() error

	opener Opener

	rootFlag    string
	verboseFlag bool
)

// skipWiring marks commands that run without opening the storage root.
const skipWiring = "flcm/skip-wiring"

var rootCmd = &cobra.Command{
	Use:   "flcm",
	Short: "Local content pipeline over a Markdown document tree",
	Long: `flcm moves content through four stages (brief, synthesis, draft and
platform adaptation) and keeps every document as a Markdown file with a
YAML header under one storage root.`,
	SilenceUsage:       true,
	PersistentPreRunE:  wireServices,
	PersistentPostRunE: releaseServices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", defaultRoot(), "storage root directory (env FLCM_ROOT)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "print debug logs to stderr")
}

func defaultRoot() string {
	if root := os.Getenv("FLCM_ROOT"); root != "" {
		return root
	}
	return "."
}

// SetServices injects services directly. Commands then skip the opener.
func SetServices(s *Services) {
	if s == nil {
		documentService = nil
		pipelineService = nil
		settingsService = nil
		indexSyncFactory = nil
		dryRunFactory = nil
		storageRoot = ""
		closeServices = nil
		return
	}
	documentService = s.Document
	pipelineService = s.Pipeline
	settingsService = s.Settings
	indexSyncFactory = s.IndexSync
	dryRunFactory = s.DryRun
	storageRoot = s.Root
	closeServices = s.Close
}

// SetOpener registers the function that builds services from --root.
func SetOpener(o Opener) {
	opener = o
}

// Execute runs the root command. Long-running commands stop when ctx is
// cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func wireServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verboseFlag)
	if _, ok := cmd.Annotations[skipWiring]; ok {
		return nil
	}
	if documentService != nil || opener == nil {
		return nil
	}
	s, err := opener(rootFlag)
	if err != nil {
		return fmt.Errorf("opening storage root %s: %w", rootFlag, err)
	}
	SetServices(s)
	logger.Debug("storage root: %s", s.Root)
	return nil
}

func releaseServices(_ *cobra.Command, _ []string) error {
	if closeServices == nil || opener == nil {
		return nil
	}
	err := closeServices()
	SetServices(nil)
	return err
}

var errNotConfigured = errors.New("not configured")

func requireDocuments() error {
	if documentService == nil {
		return fmt.Errorf("document service %w", errNotConfigured)
	}
	return nil
}

func requirePipeline() error {
	if pipelineService == nil {
		return fmt.Errorf("pipeline service %w", errNotConfigured)
	}
	return nil
}

func requireSettings() error {
	if settingsService == nil {
		return fmt.Errorf("settings service %w", errNotConfigured)
	}
	return nil
}
