// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gantry-build/gantry/lib/codec"
)

// Directory names within the store root.
const (
	blobsDir = "blobs"
	tmpDir   = "tmp"
)

// blobVersion is the blob format version carried in the magic bytes.
const blobVersion = 1

// blobMagic is the 8-byte blob file signature: "GANTRY" + version
// byte + reserved byte.
var blobMagic = [8]byte{'G', 'A', 'N', 'T', 'R', 'Y', blobVersion, 0}

// maxHeaderSize bounds the CBOR header length field when reading. A
// header larger than this indicates a corrupt or hostile file.
const maxHeaderSize = 64 * 1024

// ErrNotFound is returned when a blob or index entry does not exist.
var ErrNotFound = errors.New("artifact not found")

// blobHeader is the CBOR structure at the start of every blob file.
// The payload (compressed content) follows immediately after.
type blobHeader struct {
	Hash        []byte    `cbor:"hash"`
	RunID       string    `cbor:"run_id"`
	Name        string    `cbor:"name"`
	NodePath    string    `cbor:"node_path,omitempty"`
	Size        int64     `cbor:"size"`
	Compression uint8     `cbor:"compression"`
	StoredAt    time.Time `cbor:"stored_at"`
}

// BlobInfo describes a stored blob: its content identity plus the
// metadata recorded in its header. Content-addressed storage dedups
// identical content across runs, so for a deduplicated blob the
// RunID, Name, NodePath, and StoredAt fields are those of the first
// writer.
type BlobInfo struct {
	Hash        Hash
	Ref         string
	RunID       string
	Name        string
	NodePath    string
	Size        int64
	StoredSize  int64
	Compression CompressionTag
	StoredAt    time.Time
}

// Store manages the sharded blob directory. It is safe for concurrent
// use: writes are atomic (temp file + rename) and content addressing
// makes concurrent writes of the same content converge on the same
// file.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The
// directory structure is created if it does not exist.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, blobsDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Write stores content as a blob. The meta argument supplies the
// run id, artifact name, node path, and stored-at time recorded in
// the blob header; hash, ref, and sizes are computed here.
//
// If a blob with the same content hash already exists, nothing is
// written and the existing blob's info is returned (with its original
// header metadata).
func (s *Store) Write(content []byte, tag CompressionTag, meta BlobInfo) (*BlobInfo, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("cannot store empty content")
	}

	hash := HashContent(content)
	finalPath := s.blobPath(hash)

	// Dedup: identical content from an earlier run (or a retried
	// write) already lives at the final path.
	if _, err := os.Stat(finalPath); err == nil {
		return s.Stat(hash)
	}

	payload, actualTag, err := compressWithFallback(content, tag)
	if err != nil {
		return nil, fmt.Errorf("compressing artifact: %w", err)
	}

	header := blobHeader{
		Hash:        hash[:],
		RunID:       meta.RunID,
		Name:        meta.Name,
		NodePath:    meta.NodePath,
		Size:        int64(len(content)),
		Compression: uint8(actualTag),
		StoredAt:    meta.StoredAt.UTC(),
	}
	headerBytes, err := codec.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encoding blob header: %w", err)
	}

	if err := s.writeBlobFile(finalPath, headerBytes, payload); err != nil {
		return nil, err
	}

	return &BlobInfo{
		Hash:        hash,
		Ref:         FormatRef(hash),
		RunID:       meta.RunID,
		Name:        meta.Name,
		NodePath:    meta.NodePath,
		Size:        int64(len(content)),
		StoredSize:  int64(len(payload)),
		Compression: actualTag,
		StoredAt:    header.StoredAt,
	}, nil
}

// writeBlobFile writes magic + header frame + payload to a temp file
// and renames it into the sharded final path. The rename makes the
// write atomic: a crash never leaves a partial blob at its final
// location.
func (s *Store) writeBlobFile(finalPath string, headerBytes, payload []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp blob file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanup := func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}

	var lengthBytes [4]byte
	binary.LittleEndian.PutUint32(lengthBytes[:], uint32(len(headerBytes)))

	for _, section := range [][]byte{blobMagic[:], lengthBytes[:], headerBytes, payload} {
		if _, err := tmpFile.Write(section); err != nil {
			cleanup()
			return fmt.Errorf("writing blob: %w", err)
		}
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing blob file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("creating blob shard directory: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing blob file: %w", err)
	}

	return nil
}

// Read loads a blob, decompresses its payload, and verifies the
// content hash. The returned bytes are the original uncompressed
// content. Returns ErrNotFound if no blob exists for the hash.
func (s *Store) Read(hash Hash) (*BlobInfo, []byte, error) {
	data, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("blob %s: %w", FormatRef(hash), ErrNotFound)
		}
		return nil, nil, fmt.Errorf("reading blob: %w", err)
	}

	info, payload, err := parseBlob(data)
	if err != nil {
		return nil, nil, fmt.Errorf("blob %s: %w", FormatRef(hash), err)
	}

	content, err := Decompress(payload, info.Compression, int(info.Size))
	if err != nil {
		return nil, nil, fmt.Errorf("blob %s: %w", FormatRef(hash), err)
	}

	// Verify content against both the requested hash and the header.
	actual := HashContent(content)
	if actual != hash {
		return nil, nil, fmt.Errorf("blob %s: content hash mismatch: got %s", FormatRef(hash), FormatHash(actual))
	}
	if !bytes.Equal(info.Hash[:], actual[:]) {
		return nil, nil, fmt.Errorf("blob %s: header hash does not match content", FormatRef(hash))
	}

	return info, content, nil
}

// Stat reads a blob's header without loading or verifying the
// payload. Returns ErrNotFound if no blob exists for the hash.
func (s *Store) Stat(hash Hash) (*BlobInfo, error) {
	file, err := os.Open(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", FormatRef(hash), ErrNotFound)
		}
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("statting blob: %w", err)
	}

	header, headerFrameSize, err := readBlobHeader(file)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", FormatRef(hash), err)
	}

	info, err := headerInfo(header)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", FormatRef(hash), err)
	}
	info.StoredSize = stat.Size() - headerFrameSize
	return info, nil
}

// ResolveRef finds the full content hash for a short reference
// prefix (the 12 hex characters from ParseRef). Returns ErrNotFound
// when no blob matches and an error when the prefix is ambiguous.
func (s *Store) ResolveRef(refPrefix string) (Hash, error) {
	pattern := filepath.Join(s.root, blobsDir, refPrefix[:2], refPrefix[2:4], refPrefix+"*.blob")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return Hash{}, fmt.Errorf("resolving artifact ref: %w", err)
	}

	switch len(matches) {
	case 0:
		return Hash{}, fmt.Errorf("ref art-%s: %w", refPrefix, ErrNotFound)
	case 1:
		name := filepath.Base(matches[0])
		return ParseHash(name[:len(name)-len(".blob")])
	default:
		return Hash{}, fmt.Errorf("ref art-%s is ambiguous (%d blobs match)", refPrefix, len(matches))
	}
}

// blobPath returns the sharded filesystem path for a content hash:
// <root>/blobs/<hex[:2]>/<hex[2:4]>/<hex>.blob
func (s *Store) blobPath(hash Hash) string {
	hex := FormatHash(hash)
	return filepath.Join(s.root, blobsDir, hex[:2], hex[2:4], hex+".blob")
}

// parseBlob splits a complete blob file into its header info and
// compressed payload.
func parseBlob(data []byte) (*BlobInfo, []byte, error) {
	reader := bytes.NewReader(data)
	header, frameSize, err := readBlobHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	info, err := headerInfo(header)
	if err != nil {
		return nil, nil, err
	}

	payload := data[frameSize:]
	info.StoredSize = int64(len(payload))
	return info, payload, nil
}

// readBlobHeader reads and decodes the magic, length field, and CBOR
// header from r. Returns the decoded header and the total frame size
// (magic + length + header bytes).
func readBlobHeader(r io.Reader) (*blobHeader, int64, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, 0, fmt.Errorf("reading blob magic: %w", err)
	}
	if magic != blobMagic {
		if bytes.Equal(magic[:6], blobMagic[:6]) {
			return nil, 0, fmt.Errorf("unsupported blob version %d (want %d)", magic[6], blobVersion)
		}
		return nil, 0, errors.New("not a gantry blob (invalid magic bytes)")
	}

	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, 0, fmt.Errorf("reading blob header length: %w", err)
	}
	headerLength := binary.LittleEndian.Uint32(lengthBytes[:])
	if headerLength == 0 || headerLength > maxHeaderSize {
		return nil, 0, fmt.Errorf("blob header length %d out of range", headerLength)
	}

	headerBytes := make([]byte, headerLength)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, 0, fmt.Errorf("reading blob header: %w", err)
	}

	var header blobHeader
	if err := codec.Unmarshal(headerBytes, &header); err != nil {
		return nil, 0, fmt.Errorf("decoding blob header: %w", err)
	}

	return &header, int64(8 + 4 + headerLength), nil
}

// headerInfo converts a decoded header into a BlobInfo (without
// StoredSize, which depends on how the blob was read).
func headerInfo(header *blobHeader) (*BlobInfo, error) {
	if len(header.Hash) != 32 {
		return nil, fmt.Errorf("blob header hash is %d bytes, want 32", len(header.Hash))
	}
	var hash Hash
	copy(hash[:], header.Hash)

	return &BlobInfo{
		Hash:        hash,
		Ref:         FormatRef(hash),
		RunID:       header.RunID,
		Name:        header.Name,
		NodePath:    header.NodePath,
		Size:        header.Size,
		Compression: CompressionTag(header.Compression),
		StoredAt:    header.StoredAt,
	}, nil
}
