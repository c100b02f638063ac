// Package extract writes the entries of one or more archives to disk.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ossyrian/fparchive/internal/fparc"
	"github.com/ossyrian/fparchive/internal/logging"
	"github.com/ossyrian/fparchive/internal/parser"
)

// skippedExts are sibling files that live next to archives and are not archives.
var skippedExts = []string{".json", ".bin"}

// Options configures an extraction run.
type Options struct {
	TextKey   string
	OutputDir string

	// Pattern is a doublestar glob matched against entry names.
	// Empty matches everything.
	Pattern string

	// Workers is the number of concurrent entry extractions per archive.
	// Values <= 1 extract sequentially.
	Workers int

	// DryRun decrypts every entry without writing anything.
	DryRun bool
}

// Result summarizes the extraction of one archive.
type Result struct {
	Archive   string
	Entries   int
	Extracted int
	Skipped   int
	Bytes     int64

	// Replaced counts entries whose path a later entry needed as a directory.
	Replaced int

	// Errors holds per-entry failures. They never stop other entries.
	Errors []error
}

// Err joins all per-entry failures, or returns nil.
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// Extractor extracts archives.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns an Extractor. A nil logger uses slog.Default.
func New(opts Options, logger *slog.Logger) (*Extractor, error) {
	if opts.TextKey == "" {
		return nil, fparc.ErrEmptyKey
	}
	if opts.Pattern != "" && !doublestar.ValidatePattern(opts.Pattern) {
		return nil, fmt.Errorf("invalid pattern: %q", opts.Pattern)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger}, nil
}

// Path extracts input, which is either an archive file or a directory
// whose top-level files are archives. Archives that fail to parse are
// logged and skipped; their errors are joined into the returned error.
func (x *Extractor) Path(ctx context.Context, input string) ([]*Result, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	if !info.IsDir() {
		res, err := x.Archive(ctx, input)
		if err != nil {
			return nil, err
		}
		return []*Result{res}, nil
	}

	archives, err := ListArchives(input)
	if err != nil {
		return nil, err
	}

	x.logger.Info("found archives", "dir", input, "count", len(archives))

	var (
		results []*Result
		errs    []error
	)
	for _, path := range archives {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := x.Archive(ctx, path)
		if err != nil {
			x.logger.Error("skipping archive", "file", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

// ListArchives returns the regular files directly inside dir that may be archives.
func ListArchives(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var out []string
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(de.Name()))
		if slices.Contains(skippedExts, ext) {
			continue
		}
		out = append(out, filepath.Join(dir, de.Name()))
	}
	return out, nil
}

// Archive extracts a single archive file into
// <OutputDir>/<archive name without extension>/.
//
// The returned error covers opening and parsing only. Entry failures are
// collected in Result.Errors.
func (x *Extractor) Archive(ctx context.Context, path string) (*Result, error) {
	logger := x.logger.With("file", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	index, err := parser.Parse(file, x.opts.TextKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive: %w", err)
	}

	if dups := index.Duplicates(); len(dups) > 0 {
		logger.Warn("archive has duplicate entry names", "names", dups)
	}

	base := filepath.Base(path)
	root := filepath.Join(x.opts.OutputDir, strings.TrimSuffix(base, filepath.Ext(base)))
	out := newOutputTree(root, x.opts.DryRun)

	res := &Result{Archive: path, Entries: len(index.Entries)}

	type job struct {
		entry    fparc.Entry
		dest     string
		replaced bool
	}
	var jobs []*job
	byDest := make(map[string]*job)
	for _, e := range index.Entries {
		if x.opts.Pattern != "" {
			if ok, _ := doublestar.Match(x.opts.Pattern, entryPath(e.Name)); !ok {
				res.Skipped++
				continue
			}
		}
		dest, replaced, err := out.claim(e.Name)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		for _, r := range replaced {
			prev := byDest[r]
			prev.replaced = true
			delete(byDest, r)
			res.Replaced++
			logger.Warn("entry replaced by a directory of a later entry",
				"name", prev.entry.Name,
				"by", e.Name,
			)
		}
		j := &job{entry: e, dest: dest}
		jobs = append(jobs, j)
		byDest[dest] = j
	}
	jobs = slices.DeleteFunc(jobs, func(j *job) bool { return j.replaced })

	ex := parser.NewExtractor(file, index.StartPosition)
	errs := make([]error, len(jobs))
	var extracted, written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(x.opts.Workers, 1))

	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			data, err := ex.Extract(j.entry)
			if err != nil {
				errs[i] = err
				logger.Error("failed to extract entry", "name", j.entry.Name, "error", err)
				return nil
			}

			if err := out.write(j.dest, data); err != nil {
				errs[i] = fmt.Errorf("failed to write %s: %w", j.entry.Name, err)
				logger.Error("failed to write entry", "name", j.entry.Name, "error", err)
				return nil
			}

			extracted.Add(1)
			written.Add(int64(len(data)))
			logger.Log(gctx, logging.LevelTrace, "extracted", "name", j.entry.Name, "length", len(data), "dest", j.dest)
			return nil
		})
	}

	// only context cancellation is ever returned by the workers
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, err := range errs {
		if err != nil {
			res.Errors = append(res.Errors, err)
		}
	}
	res.Extracted = int(extracted.Load())
	res.Bytes = written.Load()

	logger.Info("extracted archive",
		"entries", res.Entries,
		"extracted", res.Extracted,
		"skipped", res.Skipped,
		"replaced", res.Replaced,
		"failed", len(res.Errors),
		"bytes", res.Bytes,
		"dest", root,
	)

	return res, nil
}
