// Package intake receives uploaded files: it validates the extension
// before any disk work, sanitizes the client-supplied filename and
// writes the file into the upload directory.
package intake

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/extract"
	"github.com/docqa/backend/pkg/apperr"
	"github.com/docqa/backend/pkg/logger"
)

type Saver struct {
	uploadDir string
}

func NewSaver(uploadDir string) *Saver {
	return &Saver{uploadDir: uploadDir}
}

func (s *Saver) UploadDir() string { return s.uploadDir }

// SanitizeFilename strips any path the client sent and normalizes the
// name: spaces become underscores, separators and parent references
// are removed.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "..", "")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == 0:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Save validates and writes one uploaded file, returning its path on
// disk. Unsupported extensions fail before anything touches the disk.
func (s *Saver) Save(fh *multipart.FileHeader) (string, error) {
	name := SanitizeFilename(fh.Filename)
	if name == "" || name == "." {
		return "", apperr.Validation("upload has no usable filename")
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !extract.Supported(ext) {
		return "", apperr.Validation("unsupported file type %q; supported extensions: %s",
			ext, strings.Join(extract.SupportedList(), ", "))
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dstPath := filepath.Join(s.uploadDir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %q: %w", dstPath, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to write %q: %w", dstPath, err)
	}

	logger.Info("File saved",
		zap.String("filename", name),
		zap.Int64("bytes", written),
	)

	return dstPath, nil
}
