package fparc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ReadInt32 reads a little-endian int32 from r.
func ReadInt32(r io.Reader, x *int32) error {
	return readLE(r, x)
}

// ReadInt64 reads a little-endian int64 from r.
func ReadInt64(r io.Reader, x *int64) error {
	return readLE(r, x)
}

// ReadUint16 reads a little-endian uint16 from r.
func ReadUint16(r io.Reader, x *uint16) error {
	return readLE(r, x)
}

func readLE(r io.Reader, v any) error {
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return Truncated(err)
	}
	return nil
}

// ReadN reads exactly n bytes from r. Memory is only allocated for bytes
// that are actually present, so a bogus length cannot force a huge buffer.
func ReadN(r io.Reader, n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	buf, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) < n {
		return nil, fmt.Errorf("%w: wanted %d bytes, got %d", ErrTruncated, n, len(buf))
	}
	return buf, nil
}

// ReadLengthPrefixed reads an int32 length followed by that many bytes.
func ReadLengthPrefixed(r io.Reader) ([]byte, error) {
	var n int32
	if err := ReadInt32(r, &n); err != nil {
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}
	return ReadN(r, int64(n))
}

// Truncated marks end-of-input errors with ErrTruncated and passes other
// errors through.
func Truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return err
}
