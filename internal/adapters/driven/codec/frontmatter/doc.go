// Package frontmatter implements the document codec: a YAML header block
// fenced by `---` lines, followed by the body text.
//
// The header carries the system fields every reader relies on
// (flcm_type, flcm_id, agent, status, created, modified, version) and the
// type-specific fields of the document variant. The layout is consumed
// directly by the note-taking application, so field names are stable.
//
// Decoding is two-phase: the envelope is read first, then flcm_type selects
// a per-type decoder that returns a typed, fully-defaulted document.
package frontmatter
