package types

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/ossyrian/fparchive/internal/fparc"
)

// Manifest describes the contents of one archive file
type Manifest struct {
	Archive       string          `json:"archive"`
	Version       string          `json:"version"`
	FileCount     int32           `json:"file_count"`
	BodySize      int32           `json:"body_size"`
	ZipFlag       uint16          `json:"zip_flag"`
	StartPosition int64           `json:"start_position"`
	Entries       []ManifestEntry `json:"entries"`
	Duplicates    []string        `json:"duplicates,omitempty"`
}

// ManifestEntry is one row of a Manifest
type ManifestEntry struct {
	Name     string `json:"name"`
	Position int64  `json:"position"`
	Offset   int64  `json:"offset"`
	Length   uint32 `json:"length"`

	// Hash is the xxhash64 of the decrypted payload, empty unless requested
	Hash  string `json:"hash,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewManifest builds a manifest from a parsed index
func NewManifest(archive string, ix *fparc.Index) *Manifest {
	m := &Manifest{
		Archive:       archive,
		StartPosition: ix.StartPosition,
		Entries:       make([]ManifestEntry, len(ix.Entries)),
		Duplicates:    ix.Duplicates(),
	}
	if ix.Header != nil {
		m.Version = ix.Header.Version
		m.FileCount = ix.Header.FileCount
		m.BodySize = ix.Header.BodySize
		m.ZipFlag = ix.Header.ZipFlag
	}

	for i, e := range ix.Entries {
		m.Entries[i] = ManifestEntry{
			Name:     e.Name,
			Position: e.Position,
			Offset:   e.Offset(ix.StartPosition),
			Length:   e.Length,
		}
	}

	return m
}

// Hash formats the xxhash64 digest of data the way manifests store it
func Hash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
