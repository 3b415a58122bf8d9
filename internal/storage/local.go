// Package storage keeps uploaded documents.  Callers only ever see opaque
// references; the layout on disk is an implementation detail.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned for file extensions outside the allow list.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrBadRef is returned for references that do not name a stored blob.
	ErrBadRef = errors.New("invalid document reference")
)

var allowedExt = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// Store saves and retrieves document blobs.
type Store interface {
	Put(ctx context.Context, folder, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	DeleteFolder(ctx context.Context, folder string) error
}

// Local stores blobs below a root directory.
type Local struct {
	root     string
	maxBytes int64
}

// NewLocal creates the root directory if needed.
func NewLocal(root string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	return &Local{root: root, maxBytes: maxBytes}, nil
}

// Put writes r under folder with a random name that keeps the extension of
// filename, and returns the reference "folder/uuid.ext".
func (s *Local) Put(ctx context.Context, folder, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", ErrUnsupportedType
	}
	folder = path.Clean("/" + folder)[1:]
	if folder == "" || strings.Contains(folder, "..") {
		return "", ErrBadRef
	}
	ref := folder + "/" + uuid.NewString() + ext

	full := s.path(ref)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(ctxReader{ctx, r}, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return ref, nil
}

// Open returns the blob behind ref.
func (s *Local) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if !validRef(ref) {
		return nil, ErrBadRef
	}
	f, err := os.Open(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBadRef
	}
	return f, err
}

// Delete removes the blob behind ref; a missing blob is not an error.
func (s *Local) Delete(_ context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if !validRef(ref) {
		return ErrBadRef
	}
	if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteFolder removes folder and every blob below it.  A missing folder is
// not an error.
func (s *Local) DeleteFolder(_ context.Context, folder string) error {
	if !validRef(folder) {
		return ErrBadRef
	}
	return os.RemoveAll(s.path(folder))
}

func (s *Local) path(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

func validRef(ref string) bool {
	return ref != "" && !strings.HasPrefix(ref, "/") && path.Clean(ref) == ref && !strings.Contains(ref, "..")
}

// ctxReader stops a copy once the request context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
