package intake

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/pkg/apperr"
)

func makeFileHeader(t *testing.T, filename, content string) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	reader := multipart.NewReader(&buf, w.Boundary())
	form, err := reader.ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":            "report.pdf",
		"my report 2024.pdf":    "my_report_2024.pdf",
		"../../etc/passwd":      "passwd",
		"..\\..\\windows.txt":   "windows.txt",
		"/abs/path/to/data.csv": "data.csv",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestSaveWritesFile(t *testing.T) {
	dir := t.TempDir()
	saver := NewSaver(dir)

	path, err := saver.Save(makeFileHeader(t, "notes.txt", "hello upload"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello upload", string(data))
}

func TestSaveSanitizesName(t *testing.T) {
	dir := t.TempDir()
	saver := NewSaver(dir)

	path, err := saver.Save(makeFileHeader(t, "quarterly report.csv", "a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quarterly_report.csv"), path)
}

func TestSaveRejectsUnsupportedBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	saver := NewSaver(dir)

	_, err := saver.Save(makeFileHeader(t, "malware.exe", "binary"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectsEmptyName(t *testing.T) {
	dir := t.TempDir()
	saver := NewSaver(dir)

	_, err := saver.Save(makeFileHeader(t, "...", "x"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
