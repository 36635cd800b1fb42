package domain

import "time"

// IndexBackend selects the metadata index implementation.
type IndexBackend string

// Available index backends.
const (
	// IndexBackendFile keeps the index in memory and persists it as one JSON blob.
	IndexBackendFile IndexBackend = "file"

	// IndexBackendSQLite keeps the index in an embedded SQLite database.
	IndexBackendSQLite IndexBackend = "sqlite"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	return b == IndexBackendFile || b == IndexBackendSQLite
}

// CancelPolicy decides what happens to documents persisted by a cancelled run.
type CancelPolicy string

// Cancellation policies.
const (
	// CancelRetain re-saves each persisted run document with status cancelled.
	CancelRetain CancelPolicy = "retain"

	// CancelDelete removes each persisted run document.
	CancelDelete CancelPolicy = "delete"
)

// IsValid returns true if the policy is recognised.
func (p CancelPolicy) IsValid() bool {
	return p == CancelRetain || p == CancelDelete
}

// StorageSettings configures the storage engine.
type StorageSettings struct {
	BackupEnabled bool
	MaxBackups    int
	IndexBackend  IndexBackend

	// ReadCacheSize bounds the in-memory cache of document files. Zero disables it.
	ReadCacheSize int
}

// PipelineSettings configures the orchestrator.
type PipelineSettings struct {
	Validate     bool
	Persist      bool
	BestEffort   bool
	MaxRetries   int
	RetryDelay   time.Duration
	CancelPolicy CancelPolicy
}

// WatchSettings configures the storage watcher.
type WatchSettings struct {
	ReindexPerSecond float64
}

// AppSettings is the complete application configuration.
type AppSettings struct {
	Storage  StorageSettings
	Pipeline PipelineSettings
	Watch    WatchSettings
}

// DefaultAppSettings returns the built-in defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Storage: StorageSettings{
			BackupEnabled: true,
			MaxBackups:    5,
			IndexBackend:  IndexBackendFile,
			ReadCacheSize: 256,
		},
		Pipeline: PipelineSettings{
			Validate:     true,
			Persist:      true,
			BestEffort:   false,
			MaxRetries:   3,
			RetryDelay:   500 * time.Millisecond,
			CancelPolicy: CancelRetain,
		},
		Watch: WatchSettings{
			ReindexPerSecond: 5,
		},
	}
}
