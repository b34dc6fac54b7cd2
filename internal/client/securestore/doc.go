// Package securestore implements the client's encrypted preferences store.
//
// A Store is a small SQLite database (modernc.org/sqlite, migrated with
// goose) holding string values sealed with AES-256-GCM. The sealing key is
// derived per store from a device master key supplied by a MasterKeyProvider,
// so two stores sharing the same master key never share a sealing key. Each
// value is authenticated together with its entry name; a ciphertext moved to
// another entry fails to open.
//
// Open verifies a sealed canary row before returning. If the database cannot
// be opened, migrated or verified, the files are removed and the store is
// recreated empty exactly once. A second failure is reported as
// common.ErrStorageCorruption.
package securestore
