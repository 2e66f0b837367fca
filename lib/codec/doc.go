// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Gantry's standard CBOR encoding configuration.
//
// Gantry uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: pipeline definitions (JSONC), the
//     run report, CLI --json output, and the JSONL run log.
//   - CBOR for internal storage: artifact blob headers in the artifact
//     store, where compact deterministic encoding matters and no human
//     edits the bytes.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Gantry package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (blob files):
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON or interact with CLI tooling.
//     Example: artifact blob headers.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: pipeline definition
//     types, run report types, run log entries.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
