package controllers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupUploadRouter(dir string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/uploads/*key", NewUploadController(dir).GetUploadedImage)
	return router
}

func TestGetUploadedImage_Success(t *testing.T) {
	tmpDir := t.TempDir()
	testContent := []byte("fake JPEG content")
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "jerseys", "sess-1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "jerseys", "sess-1", "front.jpg"), testContent, 0644))

	router := setupUploadRouter(tmpDir)
	req := httptest.NewRequest("GET", "/uploads/jerseys/sess-1/front.jpg", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "private, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, testContent, w.Body.Bytes())
}

func TestGetUploadedImage_FileNotFound(t *testing.T) {
	router := setupUploadRouter(t.TempDir())

	req := httptest.NewRequest("GET", "/uploads/jerseys/nonexistent.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "FILE_NOT_FOUND")
	assert.Contains(t, w.Body.String(), "Image not found")
}

func TestGetUploadedImage_EmptyFilename(t *testing.T) {
	router := setupUploadRouter(t.TempDir())

	req := httptest.NewRequest("GET", "/uploads/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

func TestGetUploadedImage_DirectoryTraversal(t *testing.T) {
	router := setupUploadRouter(t.TempDir())

	testCases := []struct {
		name     string
		filename string
	}{
		{"Parent directory traversal", "../../../etc/passwd.png"},
		{"Backslash in filename", "path\\to\\file.png"},
		{"Dots in filename", "..file.png"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/uploads/"+tc.filename, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_FILENAME")
		})
	}
}

func TestGetUploadedImage_InvalidFileType(t *testing.T) {
	router := setupUploadRouter(t.TempDir())

	testCases := []struct {
		name     string
		filename string
	}{
		{"GIF file", "image.gif"},
		{"No extension", "image"},
		{"Text file", "document.txt"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/uploads/"+tc.filename, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_FILE_TYPE")
		})
	}
}

func TestGetUploadedImage_CaseInsensitiveExtension(t *testing.T) {
	tmpDir := t.TempDir()
	testContent := []byte("fake PNG content")
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "crest.PNG"), testContent, 0644))

	router := setupUploadRouter(tmpDir)
	req := httptest.NewRequest("GET", "/uploads/crest.PNG", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, testContent, w.Body.Bytes())
}
