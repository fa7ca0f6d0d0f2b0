package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Record is anything keyed by a stable id.
type Record interface {
	RecordID() string
}

// errNoChange lets an Update callback skip the write.
var errNoChange = errors.New("store: no change")

// Collection is an ordered sequence of records persisted as one JSON array.
//
// Load, Save and Update are serialized by the collection mutex: a reader always
// observes either the full pre-mutation or the full post-mutation sequence.
type Collection[T Record] struct {
	name string

	mu sync.Mutex
	b  backend
}

type backend interface {
	read() ([]byte, error)
	write(data []byte) error
}

// NewFileCollection stores the collection at path, creating it as [] when absent.
func NewFileCollection[T Record](name, path string) (*Collection[T], error) {
	fb := fileBackend{path: path}
	if err := fb.init(); err != nil {
		return nil, err
	}
	return &Collection[T]{name: name, b: fb}, nil
}

// NewMemoryCollection keeps the serialized collection in memory. Records are copied on
// every read and write exactly as with the file backend.
func NewMemoryCollection[T Record](name string) *Collection[T] {
	return &Collection[T]{name: name, b: &memBackend{data: []byte("[]")}}
}

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Save replaces the whole collection.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(items)
}

// Update runs a read-modify-write cycle under the collection lock. fn may return
// errNoChange to skip the write; any other error aborts without writing.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load()
	if err != nil {
		return err
	}
	next, err := fn(items)
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.save(next)
}

func (c *Collection[T]) load() ([]T, error) {
	data, err := c.b.read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, c.name, err)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, c.name, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Collection[T]) save(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", c.name, err)
	}
	if err := c.b.write(data); err != nil {
		return fmt.Errorf("store: write %s: %w", c.name, err)
	}
	return nil
}

func indexOf[T Record](items []T, id string) int {
	for i := range items {
		if items[i].RecordID() == id {
			return i
		}
	}
	return -1
}

type fileBackend struct {
	path string
}

func (f fileBackend) init() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("store: create data dir: %w", err)
	}
	if _, err := os.Stat(f.path); errors.Is(err, fs.ErrNotExist) {
		return f.write([]byte("[]"))
	} else if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return nil
}

func (f fileBackend) read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []byte("[]"), nil
	}
	return data, err
}

// write replaces the file via rename so readers never see a partial document.
func (f fileBackend) write(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}

type memBackend struct {
	data []byte
}

func (m *memBackend) read() ([]byte, error) {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *memBackend) write(data []byte) error {
	m.data = append(m.data[:0:0], data...)
	return nil
}
