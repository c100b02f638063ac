package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/ossyrian/fparchive/internal/fparc"
	"github.com/ossyrian/fparchive/internal/logging"
)

// ArchiveReader reads the index of an archive file.
type ArchiveReader struct {
	file   io.ReadSeeker
	cipher *fparc.NameCipher
	logger *slog.Logger
	header *fparc.Header
}

// NewArchiveReader creates a reader over file that decrypts entry names
// with textKey. A nil logger discards output.
func NewArchiveReader(file io.ReadSeeker, textKey string, logger *slog.Logger) (*ArchiveReader, error) {
	cipher, err := fparc.NewNameCipher(textKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ArchiveReader{
		file:   file,
		cipher: cipher,
		logger: logger,
	}, nil
}

// ReadHeader reads the archive header from the current position.
// On success the cursor has moved by 14 bytes plus the version length.
func (r *ArchiveReader) ReadHeader() (*fparc.Header, error) {
	h := &fparc.Header{}

	version, err := fparc.ReadLengthPrefixed(r.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if !utf8.Valid(version) {
		return nil, fmt.Errorf("%w: % x", fparc.ErrEncoding, version)
	}
	h.Version = string(version)

	if err := fparc.ReadInt32(r.file, &h.FileCount); err != nil {
		return nil, fmt.Errorf("failed to read file count: %w", err)
	}

	if err := fparc.ReadInt32(r.file, &h.BodySize); err != nil {
		return nil, fmt.Errorf("failed to read body size: %w", err)
	}

	if err := fparc.ReadUint16(r.file, &h.ZipFlag); err != nil {
		return nil, fmt.Errorf("failed to read zip flag: %w", err)
	}

	r.logger.Info("read header",
		"version", h.Version,
		"file_count", h.FileCount,
		"body_size", h.BodySize,
		"zip_flag", h.ZipFlag,
	)

	r.header = h
	return h, nil
}

// ReadFileInfo reads the file-info block that follows the header.
//
// The block is length-prefixed and read into memory in one piece; entries
// are decoded from that buffer only, so a bad count can never run into the
// payload data.
func (r *ArchiveReader) ReadFileInfo() ([]fparc.Entry, error) {
	block, err := fparc.ReadLengthPrefixed(r.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read info block: %w", err)
	}
	inner := bytes.NewReader(block)

	var count int32
	if err := fparc.ReadInt32(inner, &count); err != nil {
		return nil, fmt.Errorf("failed to read entry count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: entry count %d", fparc.ErrMalformed, count)
	}

	r.logger.Debug("reading entries",
		"block_size", len(block),
		"entry_count", count,
	)

	// each entry needs at least 16 bytes, cap the preallocation accordingly
	entries := make([]fparc.Entry, 0, min(int(count), inner.Len()/16))
	for i := 0; i < int(count); i++ {
		entry, err := r.readEntry(inner)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %d: %w", i, err)
		}
		entries = append(entries, entry)

		r.logger.Log(context.Background(), logging.LevelTrace, "read entry",
			"index", i,
			"name", entry.Name,
			"position", entry.Position,
			"length", entry.Length,
		)
	}

	if inner.Len() > 0 {
		r.logger.Warn("info block has trailing bytes", "remaining", inner.Len())
	}

	r.logger.Info("read file info", "entry_count", len(entries))

	return entries, nil
}

// readEntry decodes a single entry:
// [nameLen int32][name][rawPos int64][rawLen int32]
func (r *ArchiveReader) readEntry(inner io.Reader) (fparc.Entry, error) {
	var entry fparc.Entry

	raw, err := fparc.ReadLengthPrefixed(inner)
	if err != nil {
		return entry, fmt.Errorf("failed to read name: %w", err)
	}
	entry.Name, err = r.cipher.DecryptRaw(raw)
	if err != nil {
		return entry, err
	}

	var rawPos int64
	if err := fparc.ReadInt64(inner, &rawPos); err != nil {
		return entry, fmt.Errorf("failed to read position for %s: %w", entry.Name, err)
	}
	entry.Position = rawPos - fparc.PositionAdjust

	var rawLen int32
	if err := fparc.ReadInt32(inner, &rawLen); err != nil {
		return entry, fmt.Errorf("failed to read length for %s: %w", entry.Name, err)
	}
	entry.StoredLength = rawLen
	if rawLen < 0 {
		r.logger.Warn("entry has negative length", "name", entry.Name, "length", rawLen)
	} else {
		entry.Length = uint32(rawLen / fparc.LengthDivisor)
	}

	return entry, nil
}

// ReadStartPosition reads the trailing start position of the archive.
func (r *ArchiveReader) ReadStartPosition() (int64, error) {
	return ReadStartPosition(r.file)
}

// ReadStartPosition reads the little-endian int64 stored in the last 8
// bytes of rs. The cursor of rs is restored before returning.
func ReadStartPosition(rs io.ReadSeeker) (pos int64, err error) {
	currentPos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("failed to get current position: %w", err)
	}
	defer func() {
		if _, seekErr := rs.Seek(currentPos, io.SeekStart); seekErr != nil && err == nil {
			err = fmt.Errorf("failed to seek back to position %d: %w", currentPos, seekErr)
		}
	}()

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek to end: %w", err)
	}
	if size < fparc.StartPositionSize {
		return 0, fmt.Errorf("%w: stream is %d bytes, need at least %d for start position",
			fparc.ErrTruncated, size, fparc.StartPositionSize)
	}

	if _, err := rs.Seek(size-fparc.StartPositionSize, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek to start position: %w", err)
	}
	if err := fparc.ReadInt64(rs, &pos); err != nil {
		return 0, fmt.Errorf("failed to read start position: %w", err)
	}

	return pos, nil
}

// Index reads the header, the file-info block and the start position, in
// that order, starting at the current position of the underlying file.
func (r *ArchiveReader) Index() (*fparc.Index, error) {
	header, err := r.ReadHeader()
	if err != nil {
		return nil, err
	}

	entries, err := r.ReadFileInfo()
	if err != nil {
		return nil, err
	}

	start, err := r.ReadStartPosition()
	if err != nil {
		return nil, err
	}

	r.logger.Debug("read start position", "start_position", start)

	if int(header.FileCount) != len(entries) {
		r.logger.Warn("header file count does not match info block",
			"file_count", header.FileCount,
			"entry_count", len(entries),
		)
	}

	return &fparc.Index{
		Header:        header,
		Entries:       entries,
		StartPosition: start,
	}, nil
}

// Parse reads the index of the archive in rs from the beginning.
func Parse(rs io.ReadSeeker, textKey string, logger *slog.Logger) (*fparc.Index, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to archive start: %w", err)
	}

	reader, err := NewArchiveReader(rs, textKey, logger)
	if err != nil {
		return nil, err
	}

	return reader.Index()
}
