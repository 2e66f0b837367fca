// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact implements the content-addressed artifact sink for
// pipeline runs.
//
// Artifacts are files a pipeline declares on its leaf stages. After a
// stage's commands succeed, the engine reads each declared path and
// hands the content to the sink. The sink stores the content once,
// keyed by a BLAKE3 content hash, and records a (run id, name) row in
// a SQLite index so runs can be listed and individual artifacts
// fetched later.
//
// On disk the sink is a directory of sharded blob files plus the
// index database:
//
//	<root>/blobs/<hex[:2]>/<hex[2:4]>/<hex>.blob
//	<root>/index.db
//
// Each blob file is a CBOR header (hash, run, name, sizes,
// compression tag, stored-at time) followed by the compressed
// payload. Blobs are written to a temp file and renamed into place,
// so a crash never leaves a partial blob at its final path. The blob
// files are the source of truth; the index is derived and can be
// rebuilt by re-reading the headers.
//
// The sink stores content and names only. Run outcomes live in the
// run log, not here.
package artifact
