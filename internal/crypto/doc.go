// Package crypto implements the stateless encryption engine: Curve25519 box
// key pairs, per-message authenticated encryption, and the text encoding used
// to carry key material over the directory protocol.
package crypto
