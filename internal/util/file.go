package util

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SaveUploadedFile copies an uploaded multipart file into dir under a random
// name and returns the path and the number of bytes written.
// At most limit bytes are copied; a larger file returns ErrFileTooLarge.
func SaveUploadedFile(file *multipart.FileHeader, dir string, limit int64) (string, int64, error) {
	src, err := file.Open()
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(dir, uuid.New().String()+strings.ToLower(filepath.Ext(file.Filename)))

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}

	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > limit {
		err = ErrFileTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, written, nil
}
