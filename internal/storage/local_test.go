package storage

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileHeader builds a real multipart.FileHeader by parsing a request body.
func fileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="attachment"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	t.Cleanup(func() { _ = req.MultipartForm.RemoveAll() })
	return req.MultipartForm.File["attachment"][0]
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func TestLocalStore_Check(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/uploads", 1024)
	require.NoError(t, err)

	tests := []struct {
		name        string
		filename    string
		contentType string
		size        int
		want        error
	}{
		{name: "png", filename: "scan.png", contentType: "image/png", size: 10},
		{name: "jpeg", filename: "photo.JPG", contentType: "image/jpeg", size: 10},
		{name: "pdf", filename: "report.pdf", contentType: "application/pdf", size: 10},
		{name: "gif rejected", filename: "anim.gif", contentType: "image/gif", size: 10, want: ErrUnsupportedType},
		{name: "exe with pdf type", filename: "run.exe", contentType: "application/pdf", size: 10, want: ErrUnsupportedType},
		{name: "mismatched but allowed pair passes", filename: "photo.pdf", contentType: "image/png", size: 10},
		{name: "too large", filename: "big.png", contentType: "image/png", size: 1025, want: ErrFileTooLarge},
		{name: "empty", filename: "empty.png", contentType: "image/png", size: 0, want: ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fh := fileHeader(t, tt.filename, tt.contentType, bytes.Repeat([]byte("a"), tt.size))
			err := store.Check(fh)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	assert.ErrorIs(t, store.Check(nil), ErrNoFile)
}

func TestLocalStore_Save(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "uploads/", 1024)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
	assert.Equal(t, int64(1024), store.MaxBytes())

	content := []byte("%PDF-1.4 test")
	f, err := store.Save("chat", fileHeader(t, "Lab Result.pdf", "application/pdf", content))
	require.NoError(t, err)

	assert.Equal(t, "Lab Result.pdf", f.OriginalName)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.Equal(t, int64(len(content)), f.Size)
	assert.Equal(t, "/uploads/"+f.Path, f.URL)
	assert.Equal(t, ".pdf", filepath.Ext(f.Path))

	stored, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	rc, err := store.Open(f.Path)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	require.NoError(t, store.Remove(f.Path))
	assert.Equal(t, 0, countFiles(t, dir))
	assert.NoError(t, store.Remove(f.Path), "removing twice is fine")
}

func TestLocalStore_SaveRejectedLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads", 1024)
	require.NoError(t, err)

	_, err = store.Save("chat", fileHeader(t, "big.png", "image/png", bytes.Repeat([]byte("x"), 2048)))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = store.Save("chat", fileHeader(t, "notes.txt", "text/plain", []byte("hello")))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	assert.Equal(t, 0, countFiles(t, dir))
}

func TestLocalStore_ResolveStaysInsideRoot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads", 1024)
	require.NoError(t, err)

	full, err := store.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "etc", "passwd"), full)

	_, err = store.resolve("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLocalStore_WriteFailureIsWrapped(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads", 1024)
	require.NoError(t, err)

	// A regular file where the category directory should be makes the write fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat"), []byte("x"), 0o644))

	_, err = store.Save("chat", fileHeader(t, "scan.png", "image/png", []byte("png")))
	assert.ErrorIs(t, err, ErrWriteFailed)
}
