package driven

// ConfigStore holds raw configuration values under dot-separated keys such
// as "storage.max_backups". Stores keep whatever scalar the backing format
// decoded; typed access and defaults belong to the settings service.
type ConfigStore interface {
	// Get retrieves a value by key and reports whether it exists.
	Get(key string) (any, bool)

	// Keys returns every stored key in sorted order.
	Keys() []string

	// Set stores a value and persists it immediately.
	Set(key string, value any) error

	// Load re-reads configuration from storage, replacing held values.
	Load() error

	// Path returns where the configuration is persisted.
	Path() string
}
