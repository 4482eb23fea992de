// Package archive builds zip archives in memory.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

var ErrFinalized = errors.New("archive already serialized")

// Archive collects entries and serializes them once. Entries carry no
// modification time, so the same inputs produce the same bytes.
type Archive struct {
	buf     bytes.Buffer
	w       *zip.Writer
	folders map[string]struct{}
	names   map[string]struct{}
	done    bool
}

func New() *Archive {
	a := &Archive{
		folders: make(map[string]struct{}),
		names:   make(map[string]struct{}),
	}
	a.w = zip.NewWriter(&a.buf)
	return a
}

// Folder adds a directory entry. Adding the same folder twice is a no-op.
func (a *Archive) Folder(name string) error {
	if a.done {
		return ErrFinalized
	}
	name = strings.TrimSuffix(path.Clean(name), "/") + "/"
	if _, ok := a.folders[name]; ok {
		return nil
	}
	if _, err := a.w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store}); err != nil {
		return fmt.Errorf("failed to add folder %s: %w", name, err)
	}
	a.folders[name] = struct{}{}
	return nil
}

// AddFile stores data under name. Duplicate names are rejected.
func (a *Archive) AddFile(name string, data []byte) error {
	if a.done {
		return ErrFinalized
	}
	name = path.Clean(name)
	if _, dup := a.names[name]; dup {
		return fmt.Errorf("duplicate archive entry %s", name)
	}
	if dir := path.Dir(name); dir != "." {
		if err := a.Folder(dir); err != nil {
			return err
		}
	}

	// encoded images do not shrink, skip deflate for them
	method := zip.Deflate
	if isCompressed(name) {
		method = zip.Store
	}
	w, err := a.w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	a.names[name] = struct{}{}
	return nil
}

// Len is the number of file entries.
func (a *Archive) Len() int {
	return len(a.names)
}

// Serialize finalizes the archive and returns its bytes.
func (a *Archive) Serialize() ([]byte, error) {
	if a.done {
		return nil, ErrFinalized
	}
	a.done = true
	if err := a.w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return a.buf.Bytes(), nil
}

func isCompressed(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".zip":
		return true
	}
	return false
}
