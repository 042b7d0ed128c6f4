// Package crypto owns symmetric payload encryption for tunnel data.
//
// Ownership boundary:
// - named AEAD suites (aes-256-gcm, chacha20-poly1305, xchacha20-poly1305)
// - key normalisation from opaque secrets
// - the CipherError failure taxonomy
//
// Keys are provisioned out of band. Nothing here negotiates, rotates, or
// exchanges key material.
package crypto
