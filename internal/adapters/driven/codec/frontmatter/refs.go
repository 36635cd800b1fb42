package frontmatter

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/flcm/internal/core/domain"
)

var (
	// [[target]], [[target|alias]], [[target#heading]]
	wikiLink = regexp.MustCompile(`\[\[([^\]|#]+)(?:[|#][^\]]*)?\]\]`)
	// flcm://<id>
	flcmLink = regexp.MustCompile(`flcm://([A-Za-z0-9._-]+)`)
)

// ExtractReferences returns the ids a document points to: its upstream
// reference fields first (in field-name order), then in-body links in order
// of appearance. Duplicates and self references are dropped.
func ExtractReferences(doc domain.Document, body string) []string {
	seen := map[string]bool{}
	var refs []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		refs = append(refs, id)
	}
	if doc != nil {
		seen[doc.Head().ID] = true
		fields := doc.References()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(fields[k])
		}
	}
	for _, m := range wikiLink.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	for _, m := range flcmLink.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return refs
}

// IndexEntry builds the index entry for a document stored at path.
func (c *Codec) IndexEntry(doc domain.Document, path, body string) domain.IndexEntry {
	h := doc.Head()
	entry := domain.IndexEntry{
		ID:         h.ID,
		Type:       h.Type,
		Path:       path,
		Created:    h.Created,
		Modified:   h.Modified,
		Agent:      h.Meta.Agent,
		Status:     h.Meta.Status,
		Version:    h.Version,
		Tags:       cloneStrings(h.Meta.Tags),
		References: ExtractReferences(doc, body),
	}
	if a, ok := doc.(*domain.PlatformAdaptation); ok {
		entry.Platform = a.Platform
	}
	return entry
}

// CharacterCount is the length used for adaptedContent checks.
func CharacterCount(s string) int {
	return utf8.RuneCountInString(s)
}
