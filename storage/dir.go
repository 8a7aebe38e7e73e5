// Package storage serves named G-code files out of a data directory.
package storage

import (
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidName is returned for names that cannot be mapped into the root.
var ErrInvalidName = errors.New("invalid file name")

// Dir is a file source rooted at a directory. Names use forward slashes and
// are always resolved inside the root.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	if root == "" {
		root = "."
	}
	return &Dir{root: root}
}

func (d *Dir) Root() string { return d.root }

func (d *Dir) path(name string) (string, error) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return "", ErrInvalidName
	}
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", ErrInvalidName
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func (d *Dir) Open(name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// List returns the names of the regular files directly under the root,
// sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Create truncates or creates name, making parent directories as needed.
func (d *Dir) Create(name string) (io.WriteCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(filepath.Dir(p), 0755)
	if err != nil {
		return nil, err
	}
	return os.Create(p)
}

func (d *Dir) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}
