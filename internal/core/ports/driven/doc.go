// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Versioned document persistence (filesystem engine)
//   - MetadataIndex: Id-keyed summary index shared by every run
//   - Codec: Header block + body serialisation
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EventSink: Receives pipeline lifecycle events. Without it, events are dropped.
//   - ReferenceResolver: Confirms upstream ids exist. Without it, reference checks are skipped.
//   - FileWatcher: Reports external edits to the storage tree.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
