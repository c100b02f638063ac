package fparc

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// XORBytes applies the payload cipher to data in place.
//
// The cipher repeats PayloadKey over the data:
//
//	data[i] ^= PayloadKey[i % 16]
//
// Applying it twice restores the input, so it serves for both directions.
func XORBytes(data []byte) {
	for i := range data {
		data[i] ^= PayloadKey[i%len(PayloadKey)]
	}
}

// DecryptBytes returns a decrypted copy of an entry payload.
func DecryptBytes(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	XORBytes(out)
	return out
}

// NameCipher decrypts entry names with a text key.
//
// Names are XORed per code point against the key repeated cyclically.
// A wrong key does not fail; it yields garbled names of the same length.
type NameCipher struct {
	key []rune
}

// NewNameCipher creates a name cipher from a non-empty text key.
func NewNameCipher(key string) (*NameCipher, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &NameCipher{key: []rune(key)}, nil
}

// Runes applies the cipher to a code point sequence and returns a new one.
func (c *NameCipher) Runes(raw []rune) []rune {
	out := make([]rune, len(raw))
	for i, ch := range raw {
		out[i] = ch ^ c.key[i%len(c.key)]
	}
	return out
}

// Decrypt applies the cipher to s.
//
// The result is converted back to a string, so a code point that lands in
// the surrogate range becomes U+FFFD and the round trip is lost. Use Runes
// when the output must be fed back through the cipher. Archive names are
// bytes 0x00-0xFF and are unaffected for keys below U+0100.
func (c *NameCipher) Decrypt(s string) string {
	return string(c.Runes([]rune(s)))
}

// DecryptRaw promotes raw name bytes to code points and decrypts them.
func (c *NameCipher) DecryptRaw(raw []byte) (string, error) {
	promoted, err := PromoteBytes(raw)
	if err != nil {
		return "", err
	}
	return c.Decrypt(promoted), nil
}

// PromoteBytes maps every byte to the code point of the same value
// (0x00-0xFF). This is ISO 8859-1 decoding, not UTF-8.
func PromoteBytes(raw []byte) (string, error) {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to promote name bytes: %w", err)
	}
	return string(s), nil
}
