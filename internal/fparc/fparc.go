package fparc

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a read needs more bytes than remain,
	// in the header, the info block or an entry payload.
	ErrTruncated = errors.New("fparc: truncated archive")
	// ErrMalformed is returned for negative counts or lengths.
	ErrMalformed = errors.New("fparc: malformed archive")
	// ErrEncoding is returned when the version string is not valid UTF-8.
	ErrEncoding = errors.New("fparc: invalid version encoding")
	// ErrEmptyKey is returned when a name cipher is built without a key.
	ErrEmptyKey = errors.New("fparc: empty text key")
)

// Header is the header of an archive file.
type Header struct {
	Version   string
	FileCount int32
	BodySize  int32
	ZipFlag   uint16 // compression indicator, not acted upon
}

// Entry describes one file stored in the archive.
// Position and Length are stored already corrected (see PositionAdjust
// and LengthDivisor).
type Entry struct {
	Name     string
	Position int64 // relative to the archive's start position
	Length   uint32

	// StoredLength is the length field as found in the info block.
	// A negative value leaves Length at zero and fails extraction.
	StoredLength int32
}

// Validate reports entries whose stored fields cannot describe a payload.
func (e Entry) Validate() error {
	if e.StoredLength < 0 {
		return fmt.Errorf("%w: length %d for %s", ErrMalformed, e.StoredLength, e.Name)
	}
	return nil
}

// Offset returns the absolute payload offset of e for the given start position.
func (e Entry) Offset(startPosition int64) int64 {
	return startPosition + e.Position
}

// Index is the parsed table of contents of one archive.
type Index struct {
	Header        *Header
	Entries       []Entry
	StartPosition int64
}

// ByName maps entry names to entries. Names are not guaranteed unique;
// a later entry replaces an earlier one with the same name.
func (ix *Index) ByName() map[string]Entry {
	m := make(map[string]Entry, len(ix.Entries))
	for _, e := range ix.Entries {
		m[e.Name] = e
	}
	return m
}

// Duplicates returns names that occur more than once, in first-seen order.
func (ix *Index) Duplicates() []string {
	seen := make(map[string]int, len(ix.Entries))
	var dups []string
	for _, e := range ix.Entries {
		seen[e.Name]++
		if seen[e.Name] == 2 {
			dups = append(dups, e.Name)
		}
	}
	return dups
}
