package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrUploadTooLarge = errors.New("upload exceeds size limit")

// TemporaryUpload is a request-owned file that exists only while its content
// is being extracted.
type TemporaryUpload struct {
	Path   string
	Format Format
	Size   int64
}

// UploadStore writes uploads to a scratch directory under unique names, so
// concurrent requests never share a path.
type UploadStore struct {
	dir string
}

func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &UploadStore{dir: dir}, nil
}

func (s *UploadStore) Dir() string {
	return s.dir
}

// Stage copies at most maxBytes from r into a new file. The returned upload
// may be non-nil together with an error; whenever it is non-nil the caller
// owns it and must Release it.
func (s *UploadStore) Stage(r io.Reader, format Format, maxBytes int64) (*TemporaryUpload, error) {
	path := filepath.Join(s.dir, uuid.New().String()+"."+string(format))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary upload: %w", err)
	}
	upload := &TemporaryUpload{Path: path, Format: format}

	n, copyErr := io.Copy(f, io.LimitReader(r, maxBytes+1))
	closeErr := f.Close()
	upload.Size = n

	if copyErr != nil {
		return upload, fmt.Errorf("failed to write temporary upload: %w", copyErr)
	}
	if closeErr != nil {
		return upload, fmt.Errorf("failed to close temporary upload: %w", closeErr)
	}
	if n > maxBytes {
		return upload, ErrUploadTooLarge
	}
	return upload, nil
}

// Release removes the upload. A file that is already gone is not an error.
func (s *UploadStore) Release(u *TemporaryUpload) error {
	if u == nil || u.Path == "" {
		return nil
	}
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
