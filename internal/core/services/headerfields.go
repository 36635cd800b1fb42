package services

import (
	"fmt"
	"maps"
	"slices"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

// fieldKind is the decoded shape a header field must have.
type fieldKind int

const (
	fieldText    fieldKind = iota // any scalar; numbers and bools read as text
	fieldInt                      // whole number
	fieldNumber                   // whole or decimal number
	fieldBool                     // true or false
	fieldList                     // sequence of scalars
	fieldRecords                  // sequence of mappings
	fieldRecord                   // mapping
)

func (k fieldKind) String() string {
	switch k {
	case fieldInt:
		return "an integer"
	case fieldNumber:
		return "a number"
	case fieldBool:
		return "true or false"
	case fieldList:
		return "a list of values"
	case fieldRecords:
		return "a list of mappings"
	case fieldRecord:
		return "a mapping"
	default:
		return "text"
	}
}

// matches reports whether v, as decoded from YAML, has this shape.
func (k fieldKind) matches(v any) bool {
	switch k {
	case fieldText:
		return isScalar(v)
	case fieldInt:
		return isInt(v)
	case fieldNumber:
		_, isFloat := v.(float64)
		return isFloat || isInt(v)
	case fieldBool:
		_, ok := v.(bool)
		return ok
	case fieldList:
		items, ok := v.([]any)
		return ok && !slices.ContainsFunc(items, func(item any) bool { return !isScalar(item) })
	case fieldRecords:
		items, ok := v.([]any)
		return ok && !slices.ContainsFunc(items, func(item any) bool {
			_, isMap := item.(map[string]any)
			return !isMap
		})
	case fieldRecord:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int64, uint64:
		return true
	}
	return false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, int, int64, uint64:
		return true
	}
	return false
}

// Optional envelope fields shared by every document type.
var envelopeFields = map[string]fieldKind{
	"methodologies":      fieldList,
	"processing_time_ms": fieldInt,
	"word_count":         fieldInt,
	"confidence":         fieldNumber,
	"tags":               fieldList,
}

// Type-specific header fields by document type.
var headerFields = map[domain.DocumentType]map[string]fieldKind{
	domain.TypeContentBrief: {
		"signal_score":   fieldNumber,
		"sources":        fieldRecords,
		"insights":       fieldRecords,
		"concepts":       fieldList,
		"contradictions": fieldRecords,
	},
	domain.TypeKnowledgeSynthesis: {
		"brief_id":             fieldText,
		"concept":              fieldText,
		"depth_level":          fieldInt,
		"layers":               fieldRecords,
		"analogies":            fieldRecords,
		"questions":            fieldList,
		"synthesis_confidence": fieldNumber,
		"teaching_ready":       fieldBool,
	},
	domain.TypeContentDraft: {
		"synthesis_id": fieldText,
		"title":        fieldText,
		"content":      fieldText,
		"voice":        fieldRecord,
		"structure":    fieldRecord,
		"hooks":        fieldList,
		"revisions":    fieldRecords,
	},
	domain.TypePlatformAdaptation: {
		"draft_id":        fieldText,
		"platform":        fieldText,
		"adapted_content": fieldText,
		"optimizations":   fieldRecords,
		"hashtags":        fieldList,
		"character_count": fieldInt,
		"platform_rules":  fieldRecord,
	},
}

// checkFieldKinds reports TYPE_MISMATCH for every present, non-null field
// whose decoded shape does not match kinds. Fields are visited in name
// order so results are stable.
func checkFieldKinds(c *checker, fields map[string]any, kinds map[string]fieldKind) {
	for _, name := range slices.Sorted(maps.Keys(kinds)) {
		raw, ok := fields[name]
		if !ok || raw == nil {
			continue
		}
		kind := kinds[name]
		c.constrain(kind.matches(raw), domain.Code(domain.CodeTypeMismatch, name), name,
			fmt.Sprintf("%s must be %s, got %v", name, kind, raw))
	}
}
