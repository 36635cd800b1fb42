// Package filesystem stores documents as Markdown files with a YAML header,
// one subdirectory per document type:
//
//	<root>/briefs/brief-2025-01-02-<id>.md
//	<root>/syntheses/synthesis-2025-01-02-<id>.md
//	<root>/drafts/draft-2025-01-02-<id>.md
//	<root>/adaptations/<platform>/adaptation-2025-01-02-<id>.md
//
// Prior versions are kept under a hidden .backups folder next to each file.
// Lookups go through a driven.MetadataIndex and fall back to a directory
// scan when the index is stale.
package filesystem
