// Package storage keeps uploaded files on local disk under a single root directory.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoFile          = errors.New("no file provided")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds the maximum allowed size")
	ErrUnsupportedType = errors.New("only JPEG, PNG and PDF files are allowed")
	ErrInvalidPath     = errors.New("invalid file path")

	// ErrWriteFailed wraps every disk failure so callers can tell it apart from a rejected file.
	ErrWriteFailed = errors.New("failed to store file")
)

// The declared content type and the extension are checked separately; file bytes are not sniffed.
var allowed = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

// File describes a stored upload.
type File struct {
	OriginalName string
	ContentType  string
	Size         int64
	// Path is relative to the store root, always slash separated ("chat/1700000000-ab12cd34.png").
	Path string
	URL  string
}

// LocalStore writes files below Dir and exposes them under PublicPrefix.
type LocalStore struct {
	dir          string
	publicPrefix string
	maxBytes     int64
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(dir, publicPrefix string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{
		dir:          dir,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
		maxBytes:     maxBytes,
	}, nil
}

// Dir is the root directory on disk.
func (s *LocalStore) Dir() string { return s.dir }

// MaxBytes is the size limit applied to every file.
func (s *LocalStore) MaxBytes() int64 { return s.maxBytes }

// ContentType returns the declared media type of fh without parameters.
func ContentType(fh *multipart.FileHeader) string {
	declared := fh.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mediaType
}

// Check validates type and declared size without touching the disk.
func (s *LocalStore) Check(fh *multipart.FileHeader) error {
	if fh == nil {
		return ErrNoFile
	}
	if fh.Size == 0 {
		return ErrEmptyFile
	}
	if fh.Size > s.maxBytes {
		return ErrFileTooLarge
	}
	if !allowed[ContentType(fh)] {
		return ErrUnsupportedType
	}
	if !allowedExt[strings.ToLower(filepath.Ext(fh.Filename))] {
		return ErrUnsupportedType
	}
	return nil
}

// Save validates fh and writes it under category. The file only appears at its final
// name once fully written; on any failure nothing is left behind.
func (s *LocalStore) Save(category string, fh *multipart.FileHeader) (*File, error) {
	if err := s.Check(fh); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open upload: %v", ErrWriteFailed, err)
	}
	defer src.Close()

	targetDir := filepath.Join(s.dir, category)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s dir: %v", ErrWriteFailed, category, err)
	}

	tmp, err := os.CreateTemp(targetDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrWriteFailed, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	// The declared size can lie, so the copy is bounded as well.
	written, err := io.Copy(tmp, io.LimitReader(src, s.maxBytes+1))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: write upload: %v", ErrWriteFailed, err)
	}
	if written > s.maxBytes {
		cleanup()
		return nil, ErrFileTooLarge
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("%w: close upload: %v", ErrWriteFailed, err)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)
	if err := os.Rename(tmpName, filepath.Join(targetDir, name)); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("%w: rename upload: %v", ErrWriteFailed, err)
	}

	rel := path.Join(category, name)
	return &File{
		OriginalName: filepath.Base(fh.Filename),
		ContentType:  ContentType(fh),
		Size:         written,
		Path:         rel,
		URL:          s.publicPrefix + "/" + rel,
	}, nil
}

// Open opens a stored file by its relative path.
func (s *LocalStore) Open(rel string) (*os.File, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Remove deletes a stored file. A missing file is not an error.
func (s *LocalStore) Remove(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", rel).Msg("failed to remove stored file")
		return err
	}
	return nil
}

func (s *LocalStore) resolve(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}
