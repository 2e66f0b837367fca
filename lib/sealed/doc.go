// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for pipeline
// secrets. It wraps filippo.io/age for the specific operations Gantry
// needs: generate x25519 keypairs, encrypt to multiple recipients, and
// decrypt with a private key.
//
// Ciphertext is base64-encoded for storage in pipeline definition JSON
// fields, so encrypted secrets can be committed next to the pipeline
// they belong to. Callers pass plaintext []byte to [Encrypt] and
// receive a base64 string; [Decrypt] accepts a base64 string and
// returns plaintext. Private keys and decrypted plaintext are returned
// as [secret.Buffer] values backed by mmap memory outside the Go heap
// (locked against swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [Encrypt] -- encrypt to age public key recipients
//   - [Decrypt] -- decrypt with a secret.Buffer key
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Used by "gantry run" (decrypt definition secrets into the run
// environment) and "gantry secret" (generate keys, encrypt values).
//
// Depends on lib/secret for secure memory allocation.
package sealed
