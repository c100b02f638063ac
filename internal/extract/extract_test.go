package extract_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossyrian/fparchive/internal/extract"
	"github.com/ossyrian/fparchive/internal/fparc"
)

const testKey = "hasdfeg@#$%9892^&^"

type file struct {
	name    string
	payload []byte
}

// writeArchive lays out files back to back after the index and returns the archive path
func writeArchive(t *testing.T, dir, name string, files []file) string {
	t.Helper()

	cipher, err := fparc.NewNameCipher(testKey)
	require.NoError(t, err)

	inner := new(bytes.Buffer)
	binary.Write(inner, binary.LittleEndian, int32(len(files)))
	var body []byte
	for _, f := range files {
		enc := cipher.Runes([]rune(f.name))
		raw := make([]byte, len(enc))
		for i, r := range enc {
			raw[i] = byte(r)
		}
		binary.Write(inner, binary.LittleEndian, int32(len(raw)))
		inner.Write(raw)
		binary.Write(inner, binary.LittleEndian, int64(len(body))+fparc.PositionAdjust)
		binary.Write(inner, binary.LittleEndian, int32(len(f.payload)*2))
		body = append(body, fparc.DecryptBytes(f.payload)...)
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, int32(3))
	buf.WriteString("1.0")
	binary.Write(buf, binary.LittleEndian, int32(len(files)))
	binary.Write(buf, binary.LittleEndian, int32(len(body)))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, int32(inner.Len()))
	buf.Write(inner.Bytes())

	start := int64(buf.Len())
	buf.Write(body)
	binary.Write(buf, binary.LittleEndian, start)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestArchive(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeArchive(t, in, "Configs.ab", []file{
		{name: "hero.lua", payload: []byte("return {}")},
		{name: "items/sword_json", payload: []byte(`{"atk": 3}`)},
		{name: "hero.lua", payload: []byte("dup")},
	})

	for _, workers := range []int{1, 4} {
		x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out, Workers: workers}, nil)
		require.NoError(t, err)

		res, err := x.Archive(context.Background(), path)
		require.NoError(t, err)
		require.NoError(t, res.Err())

		assert.Equal(t, 3, res.Entries)
		assert.Equal(t, 3, res.Extracted)
		assert.Equal(t, int64(9+10+3), res.Bytes)

		root := filepath.Join(out, "Configs")
		assert.Equal(t, []byte("return {}"), readFile(t, filepath.Join(root, "hero.lua")))
		assert.Equal(t, []byte("dup"), readFile(t, filepath.Join(root, "hero_1.lua")))
		assert.Equal(t, []byte(`{"atk": 3}`), readFile(t, filepath.Join(root, "items", "sword_json")))
	}
}

func TestArchive_PatternAndDryRun(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeArchive(t, in, "Lua.bytes", []file{
		{name: "a/one.lua", payload: []byte("1")},
		{name: "a/b/two.lua", payload: []byte("2")},
		{name: "a/three.txt", payload: []byte("3")},
	})

	x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out, Pattern: "**/*.lua"}, nil)
	require.NoError(t, err)

	res, err := x.Archive(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Extracted)
	assert.Equal(t, 1, res.Skipped)
	assert.FileExists(t, filepath.Join(out, "Lua", "a", "b", "two.lua"))
	assert.NoFileExists(t, filepath.Join(out, "Lua", "a", "three.txt"))

	dry, err := extract.New(extract.Options{TextKey: testKey, OutputDir: filepath.Join(out, "dry"), DryRun: true}, nil)
	require.NoError(t, err)

	res, err = dry.Archive(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Extracted)
	assert.NoDirExists(t, filepath.Join(out, "dry"))
}

func TestArchive_FileInPlaceOfDirectory(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeArchive(t, in, "x.ab", []file{
		{name: "cfg", payload: []byte("plain")},
		{name: "cfg/inner.lua", payload: []byte("nested")},
	})

	x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out}, nil)
	require.NoError(t, err)

	res, err := x.Archive(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Replaced)
	assert.Equal(t, []byte("nested"), readFile(t, filepath.Join(out, "x", "cfg", "inner.lua")))
}

func TestArchive_FileInPlaceOfDirectory_Parallel(t *testing.T) {
	in := t.TempDir()
	files := []file{{name: "cfg", payload: []byte("plain")}}
	for i := 0; i < 8; i++ {
		files = append(files, file{name: fmt.Sprintf("cfg/inner%d.lua", i), payload: []byte{byte('0' + i)}})
	}
	path := writeArchive(t, in, "x.ab", files)

	for run := 0; run < 20; run++ {
		out := t.TempDir()
		x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out, Workers: 4}, nil)
		require.NoError(t, err)

		res, err := x.Archive(context.Background(), path)
		require.NoError(t, err)
		require.NoError(t, res.Err(), "run %d", run)

		assert.Equal(t, 1, res.Replaced)
		assert.Equal(t, 8, res.Extracted)
		assert.DirExists(t, filepath.Join(out, "x", "cfg"))
		for i := 0; i < 8; i++ {
			assert.Equal(t, []byte{byte('0' + i)}, readFile(t, filepath.Join(out, "x", "cfg", fmt.Sprintf("inner%d.lua", i))))
		}
	}
}

func TestArchive_DirectoryThenFile(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeArchive(t, in, "y.ab", []file{
		{name: "cfg/inner.lua", payload: []byte("nested")},
		{name: "cfg", payload: []byte("plain")},
	})

	x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out, Workers: 4}, nil)
	require.NoError(t, err)

	res, err := x.Archive(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 2, res.Extracted)
	assert.Equal(t, []byte("nested"), readFile(t, filepath.Join(out, "y", "cfg", "inner.lua")))
	assert.Equal(t, []byte("plain"), readFile(t, filepath.Join(out, "y", "cfg_1")))
}

func TestArchive_BackslashNames(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeArchive(t, in, "win.ab", []file{
		{name: `Configs\hero.lua`, payload: []byte("hero")},
		{name: `Configs\readme.txt`, payload: []byte("skip")},
	})

	x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out, Pattern: "**/*.lua"}, nil)
	require.NoError(t, err)

	res, err := x.Archive(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Extracted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []byte("hero"), readFile(t, filepath.Join(out, "win", "Configs", "hero.lua")))
}

func TestArchive_BadEntries(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeArchive(t, in, "bad.ab", []file{
		{name: "../escape.lua", payload: []byte("no")},
		{name: "ok.lua", payload: []byte("yes")},
	})

	x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out}, nil)
	require.NoError(t, err)

	res, err := x.Archive(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Extracted)
	assert.Equal(t, []byte("yes"), readFile(t, filepath.Join(out, "bad", "ok.lua")))
}

func TestPath_Directory(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeArchive(t, in, "A.ab", []file{{name: "a.lua", payload: []byte("a")}})
	writeArchive(t, in, "B.ab", []file{{name: "b.lua", payload: []byte("b")}})
	require.NoError(t, os.WriteFile(filepath.Join(in, "manifest.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.ab"), []byte{1, 2, 3}, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(in, "sub"), 0o755))

	archives, err := extract.ListArchives(in)
	require.NoError(t, err)
	assert.Len(t, archives, 3)

	x, err := extract.New(extract.Options{TextKey: testKey, OutputDir: out, Workers: 2}, nil)
	require.NoError(t, err)

	results, err := x.Path(context.Background(), in)
	require.ErrorIs(t, err, fparc.ErrTruncated)
	assert.Len(t, results, 2)
	assert.Equal(t, []byte("a"), readFile(t, filepath.Join(out, "A", "a.lua")))
	assert.Equal(t, []byte("b"), readFile(t, filepath.Join(out, "B", "b.lua")))
}

func TestNew_Validation(t *testing.T) {
	_, err := extract.New(extract.Options{}, nil)
	assert.ErrorIs(t, err, fparc.ErrEmptyKey)

	_, err = extract.New(extract.Options{TextKey: "k", Pattern: "[a-"}, nil)
	assert.Error(t, err)
}
