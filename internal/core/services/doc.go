// Package services implements the driving port interfaces: the pipeline
// orchestrator, schema validation, stage transformers, document management,
// settings and the watcher-driven index sync.
//
// Services depend only on domain and the driven ports. Storage, codecs and
// watchers are injected by internal/app.
package services
