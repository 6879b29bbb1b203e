// Package local provides a filesystem implementation of filestore.Store
// rooted at the datasets directory.
package local

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/koustreak/vtapi/internal/errs"
	"github.com/koustreak/vtapi/internal/filestore"
)

// Store reads files below a root directory.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	root string
}

// New checks that cfg.Root is a directory and returns a Store on it.
func New(cfg *filestore.Config) (*Store, error) {
	if cfg == nil || cfg.Root == "" {
		return nil, errs.New(errs.ErrKindConfig, "local filestore: root directory not set")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "local filestore: bad root", err)
	}
	s := &Store{root: root}
	if err := s.Ping(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

// --- filestore.Store implementation ---

func (s *Store) Ping(ctx context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return mapError(err, "root not accessible")
	}
	if !fi.IsDir() {
		return errs.Newf(errs.ErrKindConfig, "local filestore: %s is not a directory", s.root)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) List(ctx context.Context, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	prefix, err := filestore.CleanKey(opts.Prefix)
	if err != nil {
		return nil, err
	}
	base := s.path(prefix)

	var results []filestore.ObjectInfo
	full := func() bool { return opts.Limit > 0 && len(results) >= opts.Limit }

	if !opts.Recursive {
		entries, err := os.ReadDir(base)
		if err != nil {
			return nil, mapError(err, "failed to list "+prefix)
		}
		for _, e := range entries {
			if full() {
				break
			}
			fi, err := e.Info()
			if err != nil {
				return nil, mapError(err, "failed to stat "+e.Name())
			}
			results = append(results, info(path.Join(prefix, e.Name()), fi))
		}
		return results, nil
	}

	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if full() {
			return fs.SkipAll
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		results = append(results, info(filepath.ToSlash(rel), fi))
		return nil
	})
	if err != nil {
		return nil, mapError(err, "failed to list "+prefix)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

func (s *Store) Open(ctx context.Context, key string) (filestore.Object, error) {
	k, err := filestore.CleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(k))
	if err != nil {
		return nil, mapError(err, "failed to open "+k)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapError(err, "failed to stat "+k)
	}
	if fi.IsDir() {
		f.Close()
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%s is a directory", k)
	}
	return &object{File: f, info: info(k, fi)}, nil
}

func (s *Store) Stat(ctx context.Context, key string) (*filestore.ObjectInfo, error) {
	k, err := filestore.CleanKey(key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(s.path(k))
	if err != nil {
		return nil, mapError(err, "failed to stat "+k)
	}
	oi := info(k, fi)
	return &oi, nil
}

// --- internal ---

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func info(key string, fi fs.FileInfo) filestore.ObjectInfo {
	oi := filestore.ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
		IsDir:        fi.IsDir(),
	}
	if !oi.IsDir {
		oi.ContentType = mime.TypeByExtension(path.Ext(key))
	}
	return oi
}

// object wraps an open file and exposes filestore.Object.
type object struct {
	*os.File
	info filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return &o.info
}

var _ filestore.Store = (*Store)(nil)
