// Package store persists local state: the encrypted identity key store and
// the per-peer message history. Everything here is exclusively local to this
// identity's device; there is no cross-device synchronisation.
package store
