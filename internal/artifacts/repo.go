// Package artifacts resolves the artifact paths named by recipe and profile
// descriptions (device images, control code, init and golden data) to
// their byte content.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/vk/npurunner/internal/failure"
)

// Repo resolves a named artifact to its bytes. Returned slices are shared
// with the repository cache and must not be modified.
type Repo interface {
	// ID distinguishes repositories for cache keys derived from artifacts.
	ID() string
	Get(path string) ([]byte, error)
}

// cache memoizes resolved artifacts per path.
type cache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *cache) lookup(path string, load func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.data[path]; ok {
		return data, nil
	}
	data, err := load()
	if err != nil {
		return nil, err
	}
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[path] = data
	return data, nil
}

// FileRepo loads artifacts from the file system. Relative paths are
// resolved against Root.
type FileRepo struct {
	root  string
	cache cache
}

// NewFileRepo creates a file backed repository. An empty root resolves
// relative paths against the working directory.
func NewFileRepo(root string) *FileRepo {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &FileRepo{root: root}
}

func (r *FileRepo) ID() string { return "file:" + r.root }

func (r *FileRepo) resolve(path string) string {
	if r.root == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.root, path)
}

func (r *FileRepo) Get(path string) ([]byte, error) {
	resolved := r.resolve(path)
	return r.cache.lookup(resolved, func() ([]byte, error) {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, failure.Wrap(failure.ErrRepo, err, "failed to open file %q", resolved)
		}
		return data, nil
	})
}

var memRepoSeq atomic.Uint64

// MemRepo serves artifacts from an in-memory map. Entries are copied on
// first use so later changes to the source map are not observed.
type MemRepo struct {
	id        string
	reference map[string][]byte
	cache     cache
}

func NewMemRepo(data map[string][]byte) *MemRepo {
	return &MemRepo{
		id:        fmt.Sprintf("mem:%d", memRepoSeq.Add(1)),
		reference: data,
	}
}

func (r *MemRepo) ID() string { return r.id }

func (r *MemRepo) Get(path string) ([]byte, error) {
	return r.cache.lookup(path, func() ([]byte, error) {
		data, ok := r.reference[path]
		if !ok {
			return nil, failure.Repof("failed to find artifact %q", path)
		}
		return append([]byte(nil), data...), nil
	})
}
