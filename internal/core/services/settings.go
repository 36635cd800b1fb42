package services

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keyBackupEnabled    = "storage.backup_enabled"
	keyMaxBackups       = "storage.max_backups"
	keyIndexBackend     = "storage.index_backend"
	keyReadCacheSize    = "storage.read_cache_size"
	keyValidate         = "pipeline.validate"
	keyPersist          = "pipeline.persist"
	keyBestEffort       = "pipeline.best_effort"
	keyMaxRetries       = "pipeline.max_retries"
	keyRetryDelayMS     = "pipeline.retry_delay_ms"
	keyCancelPolicy     = "pipeline.cancel_policy"
	keyReindexPerSecond = "watch.reindex_per_second"
)

type valueKind int

const (
	kindBool valueKind = iota
	kindInt
	kindFloat
	kindString
)

var knownKeys = map[string]valueKind{
	keyBackupEnabled:    kindBool,
	keyMaxBackups:       kindInt,
	keyIndexBackend:     kindString,
	keyReadCacheSize:    kindInt,
	keyValidate:         kindBool,
	keyPersist:          kindBool,
	keyBestEffort:       kindBool,
	keyMaxRetries:       kindInt,
	keyRetryDelayMS:     kindInt,
	keyCancelPolicy:     kindString,
	keyReindexPerSecond: kindFloat,
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings. Missing or invalid values
// fall back to the defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Storage: domain.StorageSettings{
			BackupEnabled: s.getBool(keyBackupEnabled, defaults.Storage.BackupEnabled),
			MaxBackups:    s.getNonNegative(keyMaxBackups, defaults.Storage.MaxBackups),
			IndexBackend:  s.getIndexBackend(defaults.Storage.IndexBackend),
			ReadCacheSize: s.getNonNegative(keyReadCacheSize, defaults.Storage.ReadCacheSize),
		},
		Pipeline: domain.PipelineSettings{
			Validate:     s.getBool(keyValidate, defaults.Pipeline.Validate),
			Persist:      s.getBool(keyPersist, defaults.Pipeline.Persist),
			BestEffort:   s.getBool(keyBestEffort, defaults.Pipeline.BestEffort),
			MaxRetries:   s.getNonNegative(keyMaxRetries, defaults.Pipeline.MaxRetries),
			RetryDelay:   time.Duration(s.getNonNegative(keyRetryDelayMS, int(defaults.Pipeline.RetryDelay/time.Millisecond))) * time.Millisecond,
			CancelPolicy: s.getCancelPolicy(defaults.Pipeline.CancelPolicy),
		},
		Watch: domain.WatchSettings{
			ReindexPerSecond: s.getPositiveFloat(keyReindexPerSecond, defaults.Watch.ReindexPerSecond),
		},
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}
	values := []struct {
		key   string
		value any
	}{
		{keyBackupEnabled, settings.Storage.BackupEnabled},
		{keyMaxBackups, settings.Storage.MaxBackups},
		{keyIndexBackend, string(settings.Storage.IndexBackend)},
		{keyReadCacheSize, settings.Storage.ReadCacheSize},
		{keyValidate, settings.Pipeline.Validate},
		{keyPersist, settings.Pipeline.Persist},
		{keyBestEffort, settings.Pipeline.BestEffort},
		{keyMaxRetries, settings.Pipeline.MaxRetries},
		{keyRetryDelayMS, int(settings.Pipeline.RetryDelay / time.Millisecond)},
		{keyCancelPolicy, string(settings.Pipeline.CancelPolicy)},
		{keyReindexPerSecond, settings.Watch.ReindexPerSecond},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// GetValue returns the effective value of one known key.
func (s *SettingsService) GetValue(key string) (any, error) {
	if _, ok := knownKeys[key]; !ok {
		return nil, fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}
	switch key {
	case keyBackupEnabled:
		return settings.Storage.BackupEnabled, nil
	case keyMaxBackups:
		return settings.Storage.MaxBackups, nil
	case keyIndexBackend:
		return string(settings.Storage.IndexBackend), nil
	case keyReadCacheSize:
		return settings.Storage.ReadCacheSize, nil
	case keyValidate:
		return settings.Pipeline.Validate, nil
	case keyPersist:
		return settings.Pipeline.Persist, nil
	case keyBestEffort:
		return settings.Pipeline.BestEffort, nil
	case keyMaxRetries:
		return settings.Pipeline.MaxRetries, nil
	case keyRetryDelayMS:
		return int(settings.Pipeline.RetryDelay / time.Millisecond), nil
	case keyCancelPolicy:
		return string(settings.Pipeline.CancelPolicy), nil
	default:
		return settings.Watch.ReindexPerSecond, nil
	}
}

// SetValue parses raw for the key's type, validates and persists it.
func (s *SettingsService) SetValue(key, raw string) error {
	kind, ok := knownKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	var value any
	switch kind {
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%w: %s expects true or false, got %q", domain.ErrInvalidInput, key, raw)
		}
		value = b
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s expects a non-negative integer, got %q", domain.ErrInvalidInput, key, raw)
		}
		value = n
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("%w: %s expects a positive number, got %q", domain.ErrInvalidInput, key, raw)
		}
		value = f
	default:
		switch key {
		case keyIndexBackend:
			if !domain.IndexBackend(raw).IsValid() {
				return fmt.Errorf("%w: index backend must be %q or %q", domain.ErrInvalidInput, domain.IndexBackendFile, domain.IndexBackendSQLite)
			}
		case keyCancelPolicy:
			if !domain.CancelPolicy(raw).IsValid() {
				return fmt.Errorf("%w: cancel policy must be %q or %q", domain.ErrInvalidInput, domain.CancelRetain, domain.CancelDelete)
			}
		}
		value = raw
	}

	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys returns every known settings key in sorted order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Validate checks that every stored key is known, holds a value of the
// right type and is in range.
func (s *SettingsService) Validate() error {
	for _, key := range s.configStore.Keys() {
		kind, ok := knownKeys[key]
		if !ok {
			return fmt.Errorf("%w: unknown setting %q in %s", domain.ErrInvalidInput, key, s.configStore.Path())
		}
		raw, _ := s.configStore.Get(key)
		if !kind.accepts(raw) {
			return fmt.Errorf("%w: %s has a value of the wrong type (%T)", domain.ErrInvalidInput, key, raw)
		}
	}
	if v, ok := s.lookupString(keyIndexBackend); ok && !domain.IndexBackend(v).IsValid() {
		return fmt.Errorf("%w: invalid index backend %q", domain.ErrInvalidInput, v)
	}
	if v, ok := s.lookupString(keyCancelPolicy); ok && !domain.CancelPolicy(v).IsValid() {
		return fmt.Errorf("%w: invalid cancel policy %q", domain.ErrInvalidInput, v)
	}
	for _, key := range []string{keyMaxBackups, keyReadCacheSize, keyMaxRetries, keyRetryDelayMS} {
		if n, ok := s.lookupInt(key); ok && n < 0 {
			return fmt.Errorf("%w: %s must not be negative", domain.ErrInvalidInput, key)
		}
	}
	if f, ok := s.lookupFloat(keyReindexPerSecond); ok && f <= 0 {
		return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidInput, keyReindexPerSecond)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

func validateSettings(settings *domain.AppSettings) error {
	if settings == nil {
		return fmt.Errorf("%w: nil settings", domain.ErrInvalidInput)
	}
	if !settings.Storage.IndexBackend.IsValid() {
		return fmt.Errorf("%w: invalid index backend %q", domain.ErrInvalidInput, settings.Storage.IndexBackend)
	}
	if !settings.Pipeline.CancelPolicy.IsValid() {
		return fmt.Errorf("%w: invalid cancel policy %q", domain.ErrInvalidInput, settings.Pipeline.CancelPolicy)
	}
	if settings.Storage.MaxBackups < 0 || settings.Storage.ReadCacheSize < 0 || settings.Pipeline.MaxRetries < 0 || settings.Pipeline.RetryDelay < 0 {
		return fmt.Errorf("%w: counts and delays must not be negative", domain.ErrInvalidInput)
	}
	if settings.Watch.ReindexPerSecond <= 0 {
		return fmt.Errorf("%w: reindex rate must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// Helper methods for reading config with defaults. Stores hand back what
// their format decoded (TOML integers arrive as int64), so values are
// coerced here; a value of the wrong type reads as unset.

func (k valueKind) accepts(v any) bool {
	switch k {
	case kindBool:
		_, ok := asBool(v)
		return ok
	case kindInt:
		_, ok := asInt(v)
		return ok
	case kindFloat:
		_, ok := asFloat(v)
		return ok
	default:
		_, ok := v.(string)
		return ok
	}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (s *SettingsService) lookupString(key string) (string, bool) {
	v, ok := s.configStore.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *SettingsService) lookupInt(key string) (int, bool) {
	v, ok := s.configStore.Get(key)
	if !ok {
		return 0, false
	}
	return asInt(v)
}

func (s *SettingsService) lookupFloat(key string) (float64, bool) {
	v, ok := s.configStore.Get(key)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	v, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	if b, ok := asBool(v); ok {
		return b
	}
	return defaultVal
}

func (s *SettingsService) getNonNegative(key string, defaultVal int) int {
	if n, ok := s.lookupInt(key); ok && n >= 0 {
		return n
	}
	return defaultVal
}

func (s *SettingsService) getPositiveFloat(key string, defaultVal float64) float64 {
	if f, ok := s.lookupFloat(key); ok && f > 0 {
		return f
	}
	return defaultVal
}

func (s *SettingsService) getIndexBackend(defaultVal domain.IndexBackend) domain.IndexBackend {
	if v, ok := s.lookupString(keyIndexBackend); ok && domain.IndexBackend(v).IsValid() {
		return domain.IndexBackend(v)
	}
	return defaultVal
}

func (s *SettingsService) getCancelPolicy(defaultVal domain.CancelPolicy) domain.CancelPolicy {
	if v, ok := s.lookupString(keyCancelPolicy); ok && domain.CancelPolicy(v).IsValid() {
		return domain.CancelPolicy(v)
	}
	return defaultVal
}
