package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteResult reports what a Write decided and produced.
type WriteResult struct {
	Changed bool
	Hash    string
	Bytes   int
}

// Writer persists the catalog and its content hash as a pair of sibling
// files. Nothing is written when the canonical content hash matches the
// prior one, so an unchanged sync leaves no filesystem trace at all.
type Writer struct {
	OutputPath string
	HashPath   string
}

// NewWriter creates a Writer for the given output and hash file paths.
func NewWriter(outputPath, hashPath string) *Writer {
	return &Writer{OutputPath: outputPath, HashPath: hashPath}
}

// LoadHash returns the previously recorded digest, or "" when the hash file
// does not exist yet.
func (w *Writer) LoadHash() (string, error) {
	data, err := os.ReadFile(w.HashPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading hash file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Plan encodes the catalog and reports what Write would do against oldHash,
// without touching the filesystem.
func (w *Writer) Plan(c Catalog, oldHash string) (*WriteResult, error) {
	data, err := Encode(c)
	if err != nil {
		return nil, err
	}
	hash := ContentHash(data)
	return &WriteResult{
		Changed: hash != oldHash,
		Hash:    hash,
		Bytes:   len(data),
	}, nil
}

// Write encodes the catalog, compares its hash to oldHash and, only when
// they differ, writes each file atomically, catalog first. The pair is not
// transactional: a crash between the two writes leaves a stale hash file,
// which verify reports as a mismatch. The hash file holds the hex digest
// plus a trailing newline.
func (w *Writer) Write(c Catalog, oldHash string) (*WriteResult, error) {
	data, err := Encode(c)
	if err != nil {
		return nil, err
	}
	hash := ContentHash(data)
	res := &WriteResult{Hash: hash, Bytes: len(data)}

	if hash == oldHash {
		return res, nil
	}
	res.Changed = true

	if err := writeFileAtomic(w.OutputPath, data); err != nil {
		return nil, fmt.Errorf("writing catalog: %w", err)
	}
	if err := writeFileAtomic(w.HashPath, []byte(hash+"\n")); err != nil {
		return nil, fmt.Errorf("writing hash file: %w", err)
	}
	return res, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
