package domain

import (
	"cmp"
	"slices"
	"time"
)

// IndexEntry is the persisted summary of one stored document.
// It is the only record of what exists without opening every file.
type IndexEntry struct {
	ID         string       `json:"id"`
	Type       DocumentType `json:"type"`
	Path       string       `json:"path"`
	Created    time.Time    `json:"created"`
	Modified   time.Time    `json:"modified"`
	Agent      Agent        `json:"agent"`
	Status     Status       `json:"status"`
	Version    int          `json:"version"`
	Platform   Platform     `json:"platform,omitempty"`
	Tags       []string     `json:"tags,omitempty"`
	References []string     `json:"references,omitempty"`
}

// DateRange bounds the created timestamp. Zero ends are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range, inclusive.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// IndexCriteria is the multi-predicate search over index entries.
// Zero-valued fields do not filter.
type IndexCriteria struct {
	Type        DocumentType
	Agent       Agent
	Status      Status
	Tags        []string
	DateRange   *DateRange
	ReferenceTo string
}

// Matches reports whether the entry satisfies every set predicate.
// Tags match when the entry carries all requested tags.
func (c IndexCriteria) Matches(e IndexEntry) bool {
	if c.Type != "" && e.Type != c.Type {
		return false
	}
	if c.Agent != "" && e.Agent != c.Agent {
		return false
	}
	if c.Status != "" && e.Status != c.Status {
		return false
	}
	for _, tag := range c.Tags {
		if !slices.Contains(e.Tags, tag) {
			return false
		}
	}
	if c.DateRange != nil && !c.DateRange.Contains(e.Created) {
		return false
	}
	if c.ReferenceTo != "" && !slices.Contains(e.References, c.ReferenceTo) {
		return false
	}
	return true
}

// SortOrder is ascending or descending.
type SortOrder string

// Sort orders.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sortable fields for queries.
const (
	SortByCreated  = "created"
	SortByModified = "modified"
	SortByID       = "id"
	SortByVersion  = "version"
	SortByStatus   = "status"
	SortByType     = "type"
)

// QueryFilter is the storage query surface.
type QueryFilter struct {
	Type      DocumentType
	Agent     Agent
	Status    Status
	Tags      []string
	DateRange *DateRange
	Limit     int
	Offset    int
	SortBy    string
	SortOrder SortOrder
}

// Criteria returns the index predicates of the filter.
func (f QueryFilter) Criteria() IndexCriteria {
	return IndexCriteria{
		Type:      f.Type,
		Agent:     f.Agent,
		Status:    f.Status,
		Tags:      f.Tags,
		DateRange: f.DateRange,
	}
}

// SortIndexEntries orders entries in place by the named field. Unknown or
// empty fields sort by created. Ties break on id so results are stable.
func SortIndexEntries(entries []IndexEntry, by string, order SortOrder) {
	compare := func(a, b IndexEntry) int {
		switch by {
		case SortByModified:
			return a.Modified.Compare(b.Modified)
		case SortByID:
			return 0
		case SortByVersion:
			return cmp.Compare(a.Version, b.Version)
		case SortByStatus:
			return cmp.Compare(a.Status, b.Status)
		case SortByType:
			return cmp.Compare(a.Type, b.Type)
		default:
			return a.Created.Compare(b.Created)
		}
	}
	slices.SortStableFunc(entries, func(a, b IndexEntry) int {
		c := compare(a, b)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if order == SortDesc {
			return -c
		}
		return c
	})
}

// Paginate applies offset and limit. A limit of zero or less means no limit.
func Paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// IndexSnapshot is the blob form of a whole index, keyed by document id.
type IndexSnapshot struct {
	Version int                   `json:"version"`
	Entries map[string]IndexEntry `json:"entries"`
}

// IndexSnapshotVersion is the current snapshot format.
const IndexSnapshotVersion = 1

// Clone returns a deep copy of the entry.
func (e IndexEntry) Clone() IndexEntry {
	e.Tags = slices.Clone(e.Tags)
	e.References = slices.Clone(e.References)
	return e
}

// TypeStats aggregates one type subdirectory on disk.
type TypeStats struct {
	Files       int   `json:"files"`
	Bytes       int64 `json:"bytes"`
	Backups     int   `json:"backups"`
	BackupBytes int64 `json:"backup_bytes"`
}

// StorageStats combines on-disk and index-derived counts.
type StorageStats struct {
	Root           string                     `json:"root"`
	ByType         map[DocumentType]TypeStats `json:"by_type"`
	TotalDocuments int                        `json:"total_documents"`
	TotalBytes     int64                      `json:"total_bytes"`
	ByStatus       map[Status]int             `json:"by_status"`
	IndexedByType  map[DocumentType]int       `json:"indexed_by_type"`
}

// BackupInfo describes one retained prior version.
type BackupInfo struct {
	ID      string    `json:"id"`
	Version int       `json:"version"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
