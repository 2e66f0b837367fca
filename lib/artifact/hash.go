// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of uncompressed artifact content.
type Hash [32]byte

// IsZero reports whether the hash is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// hashes in different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// contentDomainKey is the domain separation key for artifact content
// hashes. It is a fixed protocol constant — changing it invalidates
// every stored blob. The byte values are the ASCII encoding of
// "gantry.artifact.content.v1", zero-padded to 32 bytes. Readable
// ASCII keeps the key inspectable in hex dumps without sacrificing
// any property of BLAKE3 keyed mode, which treats the key as an
// opaque 32-byte value.
var contentDomainKey = domainKey{
	'g', 'a', 'n', 't', 'r', 'y', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c', 't', '.',
	'c', 'o', 'n', 't', 'e', 'n', 't', '.', 'v', '1', 0, 0, 0, 0, 0, 0,
}

// HashContent computes the content-domain BLAKE3 keyed hash of the
// given bytes. Hashes are always computed on uncompressed content so
// identity is stable across compression configuration changes.
func HashContent(data []byte) Hash {
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		// NewKeyed only fails for a wrong key length, which the
		// fixed-size domainKey type rules out.
		panic("artifact: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in the index, logs, and CLI
// output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing artifact hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("artifact hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// FormatRef returns the short artifact reference for a content hash:
// the "art-" prefix followed by the first 12 hex characters.
func FormatRef(hash Hash) string {
	return "art-" + hex.EncodeToString(hash[:6])
}

// refPattern matches well-formed artifact references.
var refPattern = regexp.MustCompile(`^art-[0-9a-f]{12}$`)

// ParseRef validates an artifact reference and returns its 12-char
// hex prefix. The prefix identifies a blob shard path but not the
// full hash; Store.ResolveRef completes it against the blobs on disk.
func ParseRef(ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("invalid artifact ref %q: want art- followed by 12 hex characters", ref)
	}
	return ref[len("art-"):], nil
}
