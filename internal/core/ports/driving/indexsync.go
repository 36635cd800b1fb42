package driving

import "context"

// IndexSyncService keeps the metadata index in step with edits made to the
// document tree outside flcm.
type IndexSyncService interface {
	// Run applies file changes under root until ctx is cancelled.
	Run(ctx context.Context, root string) error

	// Stats reports how many changes were applied and how many failed.
	Stats() SyncStats
}

// SyncStats counts the outcomes of applied file changes.
type SyncStats struct {
	Applied int
	Failed  int
}
