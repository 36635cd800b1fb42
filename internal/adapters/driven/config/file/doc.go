// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data under the storage root's hidden .flcm directory.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage (.flcm/config.toml)
package file
