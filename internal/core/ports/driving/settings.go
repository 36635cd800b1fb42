package driving

import "github.com/custodia-labs/flcm/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// GetValue returns the effective value of one known key.
	GetValue(key string) (any, error)

	// SetValue parses raw for the key's type, validates and persists it.
	SetValue(key, raw string) error

	// Keys returns every known settings key in sorted order.
	Keys() []string

	// Validate checks the stored settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
