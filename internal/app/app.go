// Package app wires the storage adapters and core services for one storage root.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/flcm/internal/adapters/driven/codec/frontmatter"
	"github.com/custodia-labs/flcm/internal/adapters/driven/config/file"
	"github.com/custodia-labs/flcm/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/flcm/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/flcm/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/flcm/internal/adapters/driven/watcher"
	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/core/services"
	"github.com/custodia-labs/flcm/internal/logger"
)

// IndexFile is the JSON snapshot name used by the file index backend.
const IndexFile = "index.json"

// App holds the services built over one storage root.
type App struct {
	Root      string
	Config    driven.ConfigStore
	Index     driven.MetadataIndex
	Store     *filesystem.Store
	Settings  *services.SettingsService
	Documents *services.DocumentService
	Pipeline  *services.Pipeline

	watchRate    float64
	pipelineOpts services.PipelineOptions
}

// Open builds every service for root, creating the tree when missing.
func Open(root string) (*App, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	cfg, err := file.NewConfigStore(abs)
	if err != nil {
		return nil, err
	}
	settingsSvc := services.NewSettingsService(cfg)
	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	index, err := openIndex(filepath.Join(abs, file.DirName), settings.Storage.IndexBackend)
	if err != nil {
		return nil, err
	}

	codec := frontmatter.New()
	resolver := &storeResolver{}
	validator := services.NewValidator(resolver)

	store, err := filesystem.New(abs, codec, index,
		filesystem.WithValidator(validator),
		filesystem.WithBackups(settings.Storage.BackupEnabled, settings.Storage.MaxBackups),
		filesystem.WithReadCache(settings.Storage.ReadCacheSize),
	)
	if err != nil {
		index.Close()
		return nil, err
	}
	resolver.stores = []driven.DocumentStore{store}

	pipelineOpts := services.PipelineOptionsFrom(settings.Pipeline)
	pipeline := services.NewPipeline(store, validator, pipelineOpts)
	pipeline.Subscribe(driven.EventSinkFunc(logEvent))

	return &App{
		Root:         abs,
		Config:       cfg,
		Index:        index,
		Store:        store,
		Settings:     settingsSvc,
		Documents:    services.NewDocumentService(store, index, codec, validator),
		Pipeline:     pipeline,
		watchRate:    settings.Watch.ReindexPerSecond,
		pipelineOpts: pipelineOpts,
	}, nil
}

func openIndex(dataDir string, backend domain.IndexBackend) (driven.MetadataIndex, error) {
	switch backend {
	case domain.IndexBackendSQLite:
		logger.Debug("index backend: sqlite in %s", dataDir)
		return sqlite.NewStore(dataDir)
	case domain.IndexBackendFile, "":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		logger.Debug("index backend: file %s", filepath.Join(dataDir, IndexFile))
		return memory.OpenIndex(filepath.Join(dataDir, IndexFile))
	default:
		return nil, fmt.Errorf("%w: index backend %q", domain.ErrInvalidInput, backend)
	}
}

// NewIndexSync builds a watcher-driven index updater for the storage tree.
func (a *App) NewIndexSync() (*services.IndexSync, error) {
	w, err := watcher.New()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return services.NewIndexSync(w, a.Store, a.watchRate), nil
}

// Close releases the index backend. Live pipeline runs are cancelled first
// so their documents get the configured cancel policy.
func (a *App) Close() error {
	var errs []error
	for _, id := range a.Pipeline.Active() {
		if err := a.Pipeline.CancelPipeline(context.Background(), id, "shutting down"); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Index.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NewDryRunPipeline builds a pipeline that saves into memory only. Upstream
// references resolve against the dry run first, then the storage tree.
func (a *App) NewDryRunPipeline() *services.Pipeline {
	resolver := &storeResolver{}
	validator := services.NewValidator(resolver)
	dry := memory.NewDocumentStore(frontmatter.New(), validator)
	resolver.stores = []driven.DocumentStore{dry, a.Store}

	opts := a.pipelineOpts
	opts.Persist = true
	opts.BestEffortPersistence = false
	p := services.NewPipeline(dry, validator, opts)
	p.Subscribe(driven.EventSinkFunc(logEvent))
	return p
}

// storeResolver confirms references against its stores in order once they
// are open.
type storeResolver struct {
	stores []driven.DocumentStore
}

func (r *storeResolver) Exists(ctx context.Context, id string) (bool, error) {
	for _, s := range r.stores {
		ok, err := s.Exists(ctx, id)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func logEvent(e domain.PipelineEvent) {
	log := logger.With("run", e.ContextID)
	switch e.Type {
	case domain.EventStageError, domain.EventRetryExhausted:
		log.Warn("%s at %s -> %s: %v", e.Type, e.From, e.To, e.Err)
	case domain.EventPersistenceDegraded:
		log.Warn("%s not persisted: %v", e.DocumentID, e.Err)
	case domain.EventRetryScheduled:
		log.Info("retry %d at %s", e.Attempt, e.From)
	default:
		log.Debug("%s %s -> %s %s", e.Type, e.From, e.To, e.DocumentID)
	}
}
