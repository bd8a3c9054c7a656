package golden

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the file extension of specification files.
const Ext = ".test"

// Store loads specifications by name.
type Store interface {
	Load(name string) (*Specification, error)
}

// Dir is a Store backed by <Root>/<name>.test files.
type Dir struct {
	Root string
}

// Path returns the file that holds the named specification.
func (d Dir) Path(name string) string {
	return filepath.Join(d.Root, name+Ext)
}

// Load reads and parses the named specification.
func (d Dir) Load(name string) (*Specification, error) {
	path := d.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Name: name, Err: fmt.Errorf("specification file not found: %s", path)}
		}
		return nil, &LoadError{Name: name, Err: fmt.Errorf("failed to read specification: %w", err)}
	}
	spec, err := ParseBytes(name, data)
	if err != nil {
		return nil, err
	}
	spec.Path = path
	return spec, nil
}

// Save writes s back to its file, creating the directory if needed.
func (d Dir) Save(s *Specification) error {
	path := d.Path(s.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, Format(s), 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// List returns the names of all specifications under Root, sorted.
func (d Dir) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != Ext {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(strings.TrimSuffix(rel, Ext)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
