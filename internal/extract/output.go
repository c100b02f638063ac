package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// entryPath normalizes an entry name to slash-separated form.
// Backslashes are treated as directory separators.
func entryPath(name string) string {
	return strings.ReplaceAll(name, `\`, "/")
}

// outputTree maps entry names to destination paths under one root.
//
// Claims are made in index order before any write starts, so the layout
// does not depend on how many workers write concurrently.
type outputTree struct {
	root   string
	dryRun bool

	mu      sync.Mutex
	claimed map[string]bool // file destinations
	dirs    map[string]bool // directories implied by claimed files
}

func newOutputTree(root string, dryRun bool) *outputTree {
	return &outputTree{
		root:    root,
		dryRun:  dryRun,
		claimed: make(map[string]bool),
		dirs:    make(map[string]bool),
	}
}

// claim reserves a destination for name.
//
// A destination already taken by a file or implied directory gets a
// numbered suffix: hero.lua, hero_1.lua, hero_2.lua. When a later entry
// needs a directory where an earlier entry claimed a file, the earlier
// claim is released and returned in replaced; the nested entry wins.
func (t *outputTree) claim(name string) (dest string, replaced []string, err error) {
	rel := filepath.FromSlash(entryPath(name))
	if !filepath.IsLocal(rel) {
		return "", nil, fmt.Errorf("entry name %q escapes the output directory", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dest = filepath.Join(t.root, rel)
	if t.claimed[dest] || t.dirs[dest] {
		ext := filepath.Ext(dest)
		base := strings.TrimSuffix(dest, ext)
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
			if !t.claimed[candidate] && !t.dirs[candidate] {
				dest = candidate
				break
			}
		}
	}
	t.claimed[dest] = true

	for dir := filepath.Dir(dest); dir != t.root && strings.HasPrefix(dir, t.root); dir = filepath.Dir(dir) {
		if t.claimed[dir] {
			delete(t.claimed, dir)
			replaced = append(replaced, dir)
		}
		t.dirs[dir] = true
	}

	return dest, replaced, nil
}

// write stores data at dest, replacing a plain file left by an earlier
// run that occupies the parent directory's path.
func (t *outputTree) write(dest string, data []byte) error {
	if t.dryRun {
		return nil
	}

	dir := filepath.Dir(dest)

	t.mu.Lock()
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		if err := os.Remove(dir); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("failed to remove file in place of directory: %w", err)
		}
	}
	err := os.MkdirAll(dir, 0o755)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return os.WriteFile(dest, data, 0o644)
}
