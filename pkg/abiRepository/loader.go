package abiRepository

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/abi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultLoadConcurrency = 8

type LoadOptions struct {
	Recursive  bool
	FileSuffix string
	// Concurrency bounds the number of files read and parsed at once
	Concurrency int
}

func DefaultLoadOptions() *LoadOptions {
	return &LoadOptions{
		Recursive:   true,
		FileSuffix:  ".json",
		Concurrency: defaultLoadConcurrency,
	}
}

type parsedFile struct {
	path string
	doc  *abi.Document
	err  error
}

// LoadDirectory loads every file below dir whose name ends with the configured suffix and returns the
// number of documents loaded. Files are read and parsed concurrently but indexed one at a time in
// lexical path order. Unreadable or invalid files are skipped with a warning; a signature collision
// aborts the load and may leave earlier documents indexed.
func (ar *AbiRepository) LoadDirectory(ctx context.Context, dir string, opts *LoadOptions) (int, error) {
	if opts == nil {
		opts = DefaultLoadOptions()
	}
	if _, err := os.ReadDir(dir); err != nil {
		return 0, fmt.Errorf("%w %s: %v", abi.ErrDirectoryRead, dir, err)
	}
	ar.logger.Sugar().Infow("Searching for ABI files", zap.String("dir", dir), zap.Bool("recursive", opts.Recursive))

	paths, err := ar.collectFiles(dir, opts)
	if err != nil {
		return 0, err
	}

	files := make([]parsedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultLoadConcurrency
	}
	g.SetLimit(concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files[i] = parseFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	loaded := 0
	for _, f := range files {
		if f.err != nil {
			ar.logger.Sugar().Warnw("Skipping ABI file", zap.String("fileName", f.path), zap.Error(f.err))
			continue
		}
		if err := ar.LoadDocument(f.doc); err != nil {
			return loaded, errors.Wrapf(err, "failed to load ABI file %s", f.path)
		}
		loaded++
	}
	ar.logger.Sugar().Infow("Loaded ABI files",
		zap.String("dir", dir),
		zap.Int("files", loaded),
		zap.Int("signatures", ar.SignatureCount()),
	)
	return loaded, nil
}

// LoadFile reads and indexes a single document. Read and parse failures are returned.
func (ar *AbiRepository) LoadFile(path string) error {
	f := parseFile(path)
	if f.err != nil {
		return f.err
	}
	return ar.LoadDocument(f.doc)
}

func parseFile(path string) parsedFile {
	data, err := os.ReadFile(path)
	if err != nil {
		return parsedFile{path: path, err: errors.Wrapf(err, "failed to read %s", path)}
	}
	doc, err := abi.ParseDocument(data, path)
	return parsedFile{path: path, doc: doc, err: err}
}

// collectFiles lists matching regular files in lexical order. Symlinks to files are followed,
// symlinks to directories are not.
func (ar *AbiRepository) collectFiles(root string, opts *LoadOptions) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("%w %s: %v", abi.ErrDirectoryRead, root, err)
			}
			ar.logger.Sugar().Warnw("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), opts.FileSuffix) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}
