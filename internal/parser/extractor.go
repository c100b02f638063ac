package parser

import (
	"fmt"
	"io"
	"sync"

	"github.com/ossyrian/fparchive/internal/fparc"
)

// ExtractEntry reads and decrypts the payload of e.
//
// It seeks rs to startPosition + e.Position and reads exactly e.Length
// bytes. The seek and read share the cursor of rs, so callers sharing one
// handle between goroutines must serialize calls (see Extractor).
func ExtractEntry(rs io.ReadSeeker, startPosition int64, e fparc.Entry) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	offset := e.Offset(startPosition)
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d for %s", fparc.ErrTruncated, offset, e.Name)
	}

	if _, err := rs.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to %s at offset %d: %w", e.Name, offset, err)
	}

	data, err := fparc.ReadN(rs, int64(e.Length))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at offset %d: %w", e.Name, offset, err)
	}

	fparc.XORBytes(data)
	return data, nil
}

// Extractor extracts entries of one archive and is safe for concurrent use.
//
// If the handle implements io.ReaderAt every extraction gets its own
// io.SectionReader and no locking happens. Otherwise the seek and the read
// run under a mutex.
type Extractor struct {
	startPosition int64

	mu sync.Mutex
	rs io.ReadSeeker
	ra io.ReaderAt
}

// NewExtractor returns an extractor reading from rs with the archive's start position.
func NewExtractor(rs io.ReadSeeker, startPosition int64) *Extractor {
	x := &Extractor{
		startPosition: startPosition,
		rs:            rs,
	}
	if ra, ok := rs.(io.ReaderAt); ok {
		x.ra = ra
	}
	return x
}

// Extract returns the decrypted payload of e.
func (x *Extractor) Extract(e fparc.Entry) ([]byte, error) {
	if x.ra == nil {
		x.mu.Lock()
		defer x.mu.Unlock()
		return ExtractEntry(x.rs, x.startPosition, e)
	}

	sr, err := x.Section(e)
	if err != nil {
		return nil, err
	}
	return ExtractEntry(sr, 0, fparc.Entry{Name: e.Name, Length: e.Length})
}

// Section returns an independent reader over the still-encrypted payload of e.
func (x *Extractor) Section(e fparc.Entry) (*io.SectionReader, error) {
	if x.ra == nil {
		return nil, fmt.Errorf("handle for %s does not support ReadAt", e.Name)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	offset := e.Offset(x.startPosition)
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d for %s", fparc.ErrTruncated, offset, e.Name)
	}
	return io.NewSectionReader(x.ra, offset, int64(e.Length)), nil
}
